package testutil

import (
	"io"

	"github.com/dtroode/rollcall-server/internal/logger"
)

// MakeNoopLogger returns a logger that discards everything.
func MakeNoopLogger() *logger.Logger {
	return logger.NewWriter(io.Discard, 0, "text")
}
