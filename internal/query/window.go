package query

import "github.com/dbaudit/collector/internal/indexfile"

// windowIntersects reports whether slot idx of t might hold a record whose
// time falls in [begin, end). A slot with ctime <= 0 carries the
// backwards-clock sentinel: its records may have any timestamp, so it is
// always visited (spec.md §4.8). Otherwise the slot's own window is
// [ctime, next-slot-ctime) — or [ctime, +inf) for the active slot — and
// that window is tested against [begin, end).
func windowIntersects(t *indexfile.Table, idx uint32, begin, end int64) bool {
	slot := t.Slots[idx]
	if slot.Ctime <= 0 {
		return true
	}

	winStart := slot.Ctime
	if idx == t.CurIdx {
		return winStart < end
	}

	next := t.Slots[(idx+1)%t.MaxNum]
	winEnd := abs64(next.Ctime)
	if winEnd == 0 {
		// Should not normally occur for a non-active slot within
		// [begidx, curidx], but treat a zeroed neighbor as unbounded
		// rather than excluding the window outright.
		return winStart < end
	}
	return winStart < end && begin < winEnd
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
