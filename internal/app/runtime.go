package app

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes binaries skip network side effects when set to 1 or true.
const TestModeEnv = "ROYALTYOPS_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func readTestMode() {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(TestModeEnv)))
	testMode.Store(v == "1" || v == "true")
}

// InTestMode reports whether the process should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(readTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	readTestMode()
}
