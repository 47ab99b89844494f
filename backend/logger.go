package backend

// Logger is an optional interface for observability during backend
// lifecycle management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort; Logf should not panic.
// - Ownership: format/args are read-only.
type Logger interface {
	// Logf logs a formatted message.
	Logf(format string, args ...any)
}

// logf logs through l when non-nil.
func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Logf(format, args...)
	}
}
