package testutil

import (
	"testing"

	"github.com/heraldhq/herald/internal/logging"
	"go.uber.org/zap/zaptest"
)

// Integration skips the test under -short. Integration tests need Docker for
// the postgres container.
func Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
}

// CreateTestLogger returns a Logger writing through the test's log output.
func CreateTestLogger(t *testing.T) *logging.Logger {
	return logging.NewLoggerWithZap(zaptest.NewLogger(t))
}
