package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/royaltyops/royaltyops/testing"
)

func TestInTestModeFromHarness(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "false")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(TestModeEnv, "TRUE")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
