// Package testlogger provides a logger bound to a test's output.
package testlogger

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/drand/drand-verify/common/log"
)

// New returns a debug level logger that writes through t.Log.
func New(t testing.TB) log.Logger {
	t.Helper()
	core := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Core()
	return log.NewZapLogger(core)
}
