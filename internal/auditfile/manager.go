// Package auditfile manages the currently-open audit file: opening the
// file named by the index table's current slot, closing it and advancing
// the ring on rotation, and the owner-read-write permission discipline the
// original collector applies.
package auditfile

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/dbaudit/collector/internal/indexfile"
)

// filePermissions matches the original's explicit chmod: owner read/write,
// never disabling the write bit the collector itself needs.
const filePermissions = 0o600

func path(dir string, fileNum uint32) string {
	return fmt.Sprintf("%s/%d_adt", dir, fileNum)
}

// Manager owns the open file handle for the current index slot and the
// byte count written to it, standing in for ftell() since *os.File doesn't
// track a line-buffered write count on its own.
type Manager struct {
	dir     string
	table   *indexfile.Table
	current *os.File
	written int64
}

// New creates a manager bound to dir and table. table must already be
// loaded or newly allocated by the caller (internal/indexfile.Load/New).
func New(dir string, table *indexfile.Table) *Manager {
	return &Manager{dir: dir, table: table}
}

// OpenError distinguishes a transient "keep using the old file" condition
// from one that should disable rotation until a config reload, matching
// auditfile_rotate's ENFILE/EMFILE special case (spec.md §7).
type OpenError struct {
	Err       error
	Transient bool
}

func (e *OpenError) Error() string { return e.Err.Error() }
func (e *OpenError) Unwrap() error { return e.Err }

// OpenCurrent opens the file named by the table's current slot. If the
// table has no live slot yet, it calls EnsureFirstSlot first (the
// collector's startup path). On success the slot's Ctime is stamped via
// MarkOpened if the file did not already exist (a restart reusing an
// existing file must not reset its creation time).
func (m *Manager) OpenCurrent(now int64) error {
	if m.table.Count == 0 {
		m.table.EnsureFirstSlot()
	}
	return m.openSlot(now)
}

func (m *Manager) openSlot(now int64) error {
	fnum := m.table.Slots[m.table.CurIdx].FileNum
	p := path(m.dir, fnum)

	_, statErr := os.Stat(p)
	existed := statErr == nil

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		transient := errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
		return &OpenError{Err: fmt.Errorf("auditfile: open %s: %w", p, err), Transient: transient}
	}

	if !existed {
		if err := os.Chmod(p, filePermissions); err != nil {
			f.Close()
			return &OpenError{Err: fmt.Errorf("auditfile: chmod %s: %w", p, err)}
		}
		m.table.MarkOpened(now)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &OpenError{Err: fmt.Errorf("auditfile: stat %s: %w", p, err)}
	}

	m.current = f
	m.written = info.Size()
	return nil
}

// Rotate closes the current file (recording its final size into the
// table) and opens the next one, matching auditfile_rotate: close always
// happens first so the table's filenum sequencing stays correct even if
// the subsequent open fails.
//
// now is used both as the new slot's candidate creation time and, for
// time-based rotations, should be the planned rotation boundary rather
// than wall-clock time, to avoid file-name slippage (spec.md §4.6) —
// callers pass whichever is appropriate.
func (m *Manager) Rotate(now int64) error {
	if err := m.CloseCurrent(); err != nil {
		return err
	}
	m.table.RotateSlot()
	return m.openSlot(now)
}

// CloseCurrent records the current file's size into its slot and closes
// the handle, leaving the table's CurIdx unchanged (rotation advances it
// separately via RotateSlot).
func (m *Manager) CloseCurrent() error {
	if m.current == nil {
		return nil
	}
	m.table.SetCurrentFileSize(uint32(m.written))
	err := m.current.Close()
	m.current = nil
	m.written = 0
	if err != nil {
		return fmt.Errorf("auditfile: close: %w", err)
	}
	return nil
}

// Append writes buf to the current file and returns the number of bytes
// written. Line-buffered durability is sufficient per spec.md §1's
// non-goals; every write is still flushed to the OS immediately since
// there is no userspace buffering layer here.
func (m *Manager) Append(buf []byte) (int, error) {
	if m.current == nil {
		return 0, fmt.Errorf("auditfile: no file open")
	}
	n, err := m.current.Write(buf)
	m.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("auditfile: write: %w", err)
	}
	return n, nil
}

// CurrentSize returns the number of bytes written to the current file so
// far (the collector's append-time size-rotation trigger reads this).
func (m *Manager) CurrentSize() int64 {
	return m.written
}

// CurrentFileNum returns the filenum of the table's current slot, or 0 if
// the table has no live slot.
func (m *Manager) CurrentFileNum() uint32 {
	if m.table.Count == 0 {
		return 0
	}
	return m.table.Slots[m.table.CurIdx].FileNum
}

// Unlink removes the file for fileNum, used by the retention pass (C6)
// when evicting the oldest slot.
func (m *Manager) Unlink(fileNum uint32) error {
	if err := os.Remove(path(m.dir, fileNum)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auditfile: unlink: %w", err)
	}
	return nil
}

// Path exposes the file path for a given filenum, used by the query scan
// (C8) to open archive files directly.
func Path(dir string, fileNum uint32) string {
	return path(dir, fileNum)
}
