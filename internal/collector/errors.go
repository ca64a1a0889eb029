package collector

import (
	"errors"
	"syscall"
)

// Error taxonomy per spec.md §7. Most of these are sentinels callers use
// with errors.Is; a few carry their own type because the main loop needs
// structured detail (is this open failure transient or should rotation be
// disabled).

var (
	// ErrIndexCorrupt is returned by Open when an on-disk index table
	// exists but fails to load; at startup with allow_errors=false this is
	// fatal, the caller should terminate.
	ErrIndexCorrupt = errors.New("collector: index table is unreadable")

	// ErrRotationDisabled marks that a prior non-transient rotation-open
	// failure has disabled automatic rotation; it stays disabled until a
	// config-reload (SIGHUP) re-arms it.
	ErrRotationDisabled = errors.New("collector: rotation disabled after open failure")

	// ErrNoFileOpen names the no-open-file condition. Nothing in this
	// package returns it; auditfile.Manager.Append reports that case with
	// its own error.
	ErrNoFileOpen = errors.New("collector: no audit file open")
)

// FatalError wraps a startup failure that should terminate the process
// (inability to open the initial audit file, or a malformed index loaded
// with allow_errors=false).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "collector: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// isNoSpace reports whether err is (or wraps) ENOSPC, the one append
// failure the main loop retries indefinitely instead of surfacing.
func isNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
