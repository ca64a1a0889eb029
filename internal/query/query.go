// Package query implements the range scan (C8) over the archive: selecting
// which index slots can hold records in a time window, and, within each
// selected file, which records actually fall inside it.
//
// Privilege checks are a caller concern, not this package's: spec.md §1
// lists "authentication and privilege checks for queries" as a non-goal
// handled by whatever surface calls Query/Delete (the admin API's bearer
// token, an operator CLI's own os.Geteuid() check, and so on).
package query

import (
	"fmt"
	"os"

	"github.com/dbaudit/collector/internal/indexfile"
	"github.com/dbaudit/collector/internal/wire"
)

// Query scans every archive file whose slot window can intersect
// [begin, end) and returns every live record whose own timestamp falls in
// that window, in file (oldest-to-newest) and then on-disk order — the
// same two-level iteration as pg_query_audit/pgaudit_check_system.
func Query(dir string, begin, end int64) ([]Row, error) {
	if begin >= end {
		return nil, nil
	}

	table, err := indexfile.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("query: load index: %w", err)
	}
	if table == nil || table.Count == 0 {
		return nil, nil
	}

	var rows []Row
	idx := table.BegIdx
	for {
		if windowIntersects(table, idx, begin, end) {
			fileRows, err := queryFile(dir, table.Slots[idx].FileNum, begin, end)
			if err != nil && !os.IsNotExist(err) {
				return rows, fmt.Errorf("query: scan file %d: %w", table.Slots[idx].FileNum, err)
			}
			rows = append(rows, fileRows...)
		}
		if idx == table.CurIdx {
			break
		}
		idx = (idx + 1) % table.MaxNum
	}
	return rows, nil
}

func queryFile(dir string, fileNum uint32, begin, end int64) ([]Row, error) {
	f, err := openArchiveFile(dir, fileNum, false)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	err = scanRecords(f, func(_ int64, rec *wire.Record) bool {
		if rec.Header.Flags == wire.FlagLive && rec.Header.Time >= begin && rec.Header.Time < end {
			rows = append(rows, rowFromRecord(rec))
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
