package detour

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var defaultLogger atomic.Value

func init() {
	l := logrus.New()
	l.SetOutput(io.Discard)
	SetLogger(l)
}

// SetLogger sets the logger used by detours that weren't given one with
// WithLogger. Nothing is logged by default.
func SetLogger(l logrus.FieldLogger) {
	defaultLogger.Store(&l)
}

func logger() logrus.FieldLogger {
	return *defaultLogger.Load().(*logrus.FieldLogger)
}
