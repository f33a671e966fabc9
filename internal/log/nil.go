package log

import "context"

type nopLogger struct{}

// NewNop returns a Logger that discards everything. Tests and optional
// collaborators use it in place of a nil Logger.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Log(context.Context, Level, string, ...Field) {}

func (n nopLogger) With(...Field) Logger { return n }

func (n nopLogger) WithGroup(string) Logger { return n }

func (nopLogger) Enabled(Level) bool { return false }

func (nopLogger) Sync(context.Context) error { return nil }
