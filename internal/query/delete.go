package query

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dbaudit/collector/internal/indexfile"
	"github.com/dbaudit/collector/internal/wire"
)

// Delete soft-deletes every live record in [begin, end) by flipping its
// header flags to wire.FlagDeleted in place, mirroring pgaudit_delete_file's
// seek-back-rewrite-header pattern. It returns the number of records
// deleted.
//
// Delete never touches the active file: the collector appends to it
// concurrently, and rewriting bytes behind an append in progress would
// race. Non-current files only ever shrink their live record count, so
// skipping the active slot is sufficient — spec.md §5.
func Delete(dir string, begin, end int64) (int, error) {
	if begin >= end {
		return 0, nil
	}

	table, err := indexfile.Load(dir)
	if err != nil {
		return 0, fmt.Errorf("delete: load index: %w", err)
	}
	if table == nil || table.Count == 0 {
		return 0, nil
	}

	var total int
	idx := table.BegIdx
	for {
		if idx != table.CurIdx && windowIntersects(table, idx, begin, end) {
			n, err := deleteInFile(dir, table.Slots[idx].FileNum, begin, end)
			if err != nil && !os.IsNotExist(err) {
				return total, fmt.Errorf("delete: scan file %d: %w", table.Slots[idx].FileNum, err)
			}
			total += n
		}
		if idx == table.CurIdx {
			break
		}
		idx = (idx + 1) % table.MaxNum
	}
	return total, nil
}

func deleteInFile(dir string, fileNum uint32, begin, end int64) (int, error) {
	f, err := openArchiveFile(dir, fileNum, true)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var flagField [2]byte
	binary.LittleEndian.PutUint16(flagField[:], wire.FlagDeleted)

	count := 0
	var writeErr error
	_ = scanRecords(f, func(offset int64, rec *wire.Record) bool {
		if rec.Header.Flags != wire.FlagLive || rec.Header.Time < begin || rec.Header.Time >= end {
			return false
		}
		if _, werr := f.WriteAt(flagField[:], offset+6); werr != nil {
			writeErr = werr
			return true
		}
		count++
		return false
	})
	if writeErr != nil {
		return count, writeErr
	}
	return count, nil
}
