package reg

import "errors"

// Sentinel errors for the failure classes callers are expected to branch on.
// Everything else is wrapped context around one of these or plain I/O error.
var (
	// ErrInvalidParams marks a parameter set rejected before any I/O.
	ErrInvalidParams = errors.New("invalid run parameters")

	// ErrSourceUnavailable marks a sampler failure that survived a retry.
	ErrSourceUnavailable = errors.New("entropy source unavailable")

	// ErrLogClosed is returned when appending to a session whose log has
	// already been closed.
	ErrLogClosed = errors.New("trial log closed")

	// ErrNotFound marks a lookup for a run or log file that does not exist.
	ErrNotFound = errors.New("not found")
)
