// Package indexfile implements the audit index table: the single on-disk
// file that names every live audit file as a fixed-capacity ring and tracks
// its size and creation time.
package indexfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// headerSize is maxnum, begidx, curidx, count (uint32 each) plus
// last_audit_time (int64).
const headerSize = 4*4 + 8

// slotSize is ctime (int64, signed) + filenum (uint32) + filesize (uint32).
const slotSize = 8 + 4 + 4

const indexFileName = "index_table"

// Slot is one ring entry, corresponding to one audit file. A negative Ctime
// marks that the collector observed its wall clock move backwards while
// that file was open; it is a sentinel, not a usable timestamp.
type Slot struct {
	Ctime    int64
	FileNum  uint32
	FileSize uint32
}

// Live reports whether the slot currently names a file (any ctime, positive
// or negative, means live; a zeroed slot has ctime == 0).
func (s Slot) Live() bool {
	return s.Ctime != 0
}

// BackwardsClock reports whether this slot's clock-moved-backwards sentinel
// is set.
func (s Slot) BackwardsClock() bool {
	return s.Ctime < 0
}

// Table is the in-memory index: a bounded ring of Slot plus the small
// running header fields that describe it.
type Table struct {
	MaxNum         uint32
	BegIdx         uint32
	CurIdx         uint32
	Count          uint32
	LastAuditTime  int64
	Slots          []Slot
}

// New allocates an empty table with the given ring capacity
// (file_remain_threshold + 1, per spec.md §3).
func New(capacity uint32) *Table {
	return &Table{
		MaxNum: capacity,
		Slots:  make([]Slot, capacity),
	}
}

// Path returns the index file's path under dir.
func Path(dir string) string {
	return dir + "/" + indexFileName
}

// Load reads the index table from dir, returning (nil, nil) if no index
// file exists yet (a fresh archive).
func Load(dir string) (*Table, error) {
	f, err := os.Open(Path(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("indexfile: open: %w", err)
	}
	defer f.Close()

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// Empty or truncated index file: treat as absent, matching
			// pgaudit_read_indexfile's "nread != 1" fallthrough.
			return nil, nil
		}
		return nil, fmt.Errorf("indexfile: read header: %w", err)
	}

	t := decodeHeader(hdr)
	if t.MaxNum == 0 {
		return nil, nil
	}

	body := make([]byte, int(t.MaxNum)*slotSize)
	n, err := io.ReadFull(f, body)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("indexfile: read slots: %w", err)
	}
	t.Slots = make([]Slot, t.MaxNum)
	for i := 0; i*slotSize+slotSize <= n; i++ {
		t.Slots[i] = decodeSlot(body[i*slotSize : i*slotSize+slotSize])
	}
	return t, nil
}

// Save writes the whole table to dir by truncate+overwrite, matching
// pgaudit_update_indexfile: there is no partial update and no atomic
// rename, so a crash mid-write can corrupt the index (spec.md §9 Open
// Questions deliberately leaves this unaddressed).
func (t *Table) Save(dir string) error {
	f, err := os.OpenFile(Path(dir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("indexfile: open for write: %w", err)
	}
	defer f.Close()

	buf := make([]byte, headerSize+int(t.MaxNum)*slotSize)
	t.encodeHeader(buf[:headerSize])
	for i, s := range t.Slots {
		encodeSlot(buf[headerSize+i*slotSize:headerSize+(i+1)*slotSize], s)
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("indexfile: write: %w", err)
	}
	return nil
}

func decodeHeader(b []byte) *Table {
	return &Table{
		MaxNum:        binary.LittleEndian.Uint32(b[0:4]),
		BegIdx:        binary.LittleEndian.Uint32(b[4:8]),
		CurIdx:        binary.LittleEndian.Uint32(b[8:12]),
		Count:         binary.LittleEndian.Uint32(b[12:16]),
		LastAuditTime: int64(binary.LittleEndian.Uint64(b[16:24])),
	}
}

func (t *Table) encodeHeader(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], t.MaxNum)
	binary.LittleEndian.PutUint32(b[4:8], t.BegIdx)
	binary.LittleEndian.PutUint32(b[8:12], t.CurIdx)
	binary.LittleEndian.PutUint32(b[12:16], t.Count)
	binary.LittleEndian.PutUint64(b[16:24], uint64(t.LastAuditTime))
}

func decodeSlot(b []byte) Slot {
	return Slot{
		Ctime:    int64(binary.LittleEndian.Uint64(b[0:8])),
		FileNum:  binary.LittleEndian.Uint32(b[8:12]),
		FileSize: binary.LittleEndian.Uint32(b[12:16]),
	}
}

func encodeSlot(b []byte, s Slot) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(s.Ctime))
	binary.LittleEndian.PutUint32(b[8:12], s.FileNum)
	binary.LittleEndian.PutUint32(b[12:16], s.FileSize)
}

// TotalSpace sums the on-disk size of every live slot (the current slot's
// size is whatever was last recorded for it — callers append the open
// file's live offset separately, matching pgaudit_indextbl_init's
// pgaudit_totalspace computation).
func (t *Table) TotalSpace() uint64 {
	if t.Count == 0 {
		return 0
	}
	var total uint64
	idx := t.BegIdx
	for {
		total += uint64(t.Slots[idx].FileSize)
		if idx == t.CurIdx {
			break
		}
		idx = (idx + 1) % t.MaxNum
	}
	return total
}

// EnsureFirstSlot marks slot 0 live with Count=1 if the table is still
// empty. It does not stamp Ctime — the file manager does that once it
// confirms the backing file did not already exist (mirrors
// auditfile_open's "if (!exist) item->ctime = timestamp").
func (t *Table) EnsureFirstSlot() {
	if t.Count == 0 {
		t.Count = 1
	}
}

// RotateSlot advances CurIdx to the next ring position and assigns it the
// next filenum, for use during rotation (auditfile_close's curidx advance).
// Ctime is left zero until the file manager stamps it. Callers must evict
// first if the ring is full (CurIdx+1 == BegIdx with Count == MaxNum);
// RotateSlot does not check capacity itself.
func (t *Table) RotateSlot() uint32 {
	prevFileNum := t.Slots[t.CurIdx].FileNum
	next := (t.CurIdx + 1) % t.MaxNum
	t.Slots[next] = Slot{FileNum: prevFileNum + 1}
	t.CurIdx = next
	t.Count++
	return next
}

// MarkOpened stamps the current slot's Ctime if it is not already set,
// called once the file manager confirms the backing file was newly
// created rather than reused across a restart.
func (t *Table) MarkOpened(now int64) {
	if t.Count == 0 {
		return
	}
	if t.Slots[t.CurIdx].Ctime == 0 {
		t.Slots[t.CurIdx].Ctime = now
	}
	if t.LastAuditTime < now {
		t.LastAuditTime = now
	}
}

// EvictOldest removes the slot at BegIdx: it is the caller's responsibility
// to unlink the backing file first. Returns false (no-op) if the table is
// empty or BegIdx == CurIdx (never evict the active file, per spec.md §4.6).
func (t *Table) EvictOldest() (Slot, bool) {
	if t.Count == 0 || t.BegIdx == t.CurIdx {
		return Slot{}, false
	}
	evicted := t.Slots[t.BegIdx]
	t.Slots[t.BegIdx] = Slot{}
	t.BegIdx = (t.BegIdx + 1) % t.MaxNum
	t.Count--
	return evicted, true
}

// MarkBackwardsClock negates the current slot's ctime in place, the
// sentinel the original format uses to flag that wall-clock time moved
// backwards while this file was being written.
func (t *Table) MarkBackwardsClock() {
	if t.Count == 0 {
		return
	}
	if s := t.Slots[t.CurIdx]; s.Ctime > 0 {
		s.Ctime = -s.Ctime
		t.Slots[t.CurIdx] = s
	}
}

// SetCurrentFileSize updates the current slot's recorded size, called on
// close_current (§4.4) once the file's final offset is known.
func (t *Table) SetCurrentFileSize(size uint32) {
	if t.Count == 0 {
		return
	}
	t.Slots[t.CurIdx].FileSize = size
}

// Compact builds a fresh table of the given capacity containing only the
// live slots, dense from index 0, used by the resize path when
// file_remain_threshold changes (spec.md §4.3).
func (t *Table) Compact(newCapacity uint32) *Table {
	out := New(newCapacity)
	if t.Count == 0 {
		return out
	}
	idx := t.BegIdx
	pos := uint32(0)
	for {
		if pos < newCapacity {
			out.Slots[pos] = t.Slots[idx]
			pos++
		}
		if idx == t.CurIdx {
			break
		}
		idx = (idx + 1) % t.MaxNum
	}
	out.Count = pos
	if pos > 0 {
		out.BegIdx = 0
		out.CurIdx = pos - 1
	}
	out.LastAuditTime = t.LastAuditTime
	return out
}
