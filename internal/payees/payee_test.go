package payees

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDirectoryLookups(t *testing.T) {
	agreement := uuid.New()
	known := Payee{ID: uuid.New(), Name: "Ada Writer", AgreementID: &agreement, AgreementName: "Publishing 2023"}
	nameless := Payee{ID: uuid.New()}
	dir := NewDirectory([]Payee{known, nameless})

	assert.Equal(t, "Ada Writer", dir.Name(known.ID))
	assert.Equal(t, "Publishing 2023", dir.Agreement(known.ID))
	assert.Equal(t, UnknownName, dir.Name(nameless.ID))
	assert.Equal(t, UnknownName, dir.Name(uuid.New()))
	assert.Empty(t, dir.Agreement(uuid.New()))
}
