package broute

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogUnhandledError(requestID string, err error)
	LogAbandonedHandler(route *Route, err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogUnhandledError(requestID string, err error) {
	l.Logger.Printf("broute: unhandled error for request %s: %s", requestID, err)
}

func (l stdLogger) LogAbandonedHandler(route *Route, err error) {
	l.Logger.Printf("broute: abandoned handler of %s %s finished late: %v", route.Method(), route.Path(), err)
}

// NewStdLogger reports through a standard library logger.
func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

// TestLogger logs through tb and counts the calls per method.
type TestLogger struct {
	tb testing.TB

	NumLogUnhandledError   int64
	NumLogAbandonedHandler int64
}

// NewTestLogger creates a TestLogger for tb.
func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogUnhandledError(requestID string, err error) {
	atomic.AddInt64(&l.NumLogUnhandledError, 1)
	l.tb.Logf("broute: unhandled error for request %s: %s", requestID, err)
}

func (l *TestLogger) LogAbandonedHandler(route *Route, err error) {
	atomic.AddInt64(&l.NumLogAbandonedHandler, 1)
	l.tb.Logf("broute: abandoned handler of %s %s finished late: %v", route.Method(), route.Path(), err)
}

var _ Logger = &TestLogger{}
