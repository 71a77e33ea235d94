package log

import "testing"

func TestNewWithLevelDoesNotPanicForAnyLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := NewWithLevel(level)
		l.Info("test message", "level", level)
	}
}

func TestNoOpDiscardsEverything(t *testing.T) {
	l := NoOp()
	l.Debug("discarded")
	l.Info("discarded")
	l.Warn("discarded")
	l.Error("discarded")
	if err := l.Sync(); err != nil {
		// the no-op logger has no output to flush, so an error here is only
		// logged, not treated as a functional failure of the logger itself.
		t.Logf("sync returned %v (non-fatal)", err)
	}
}

func TestWithAttachesFields(t *testing.T) {
	l := NoOp().With("component", "test")
	l.Info("hello")
}

func TestNewLoggerNamesComponent(t *testing.T) {
	l := NewLogger("escrowsim")
	l.Info("started")
}
