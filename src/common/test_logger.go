package common

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogLevel is the level used by loggers created for tests.
const TestLogLevel = logrus.DebugLevel

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	sync.Mutex
	t      testing.TB
	prefix string
	done   bool
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	a.Lock()
	defer a.Unlock()

	// background routines may still log after the test has returned
	if a.done {
		return len(d), nil
	}

	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger, at the given level, that writes into
// t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	adapter := &testLoggerAdapter{t: t}
	t.Cleanup(func() {
		adapter.Lock()
		adapter.done = true
		adapter.Unlock()
	})

	logger := logrus.New()
	logger.Out = adapter
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry for use in tests.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return logrus.NewEntry(NewTestLogger(t, level))
}
