package indexfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openNext simulates the file manager's open sequence (EnsureFirstSlot or
// RotateSlot, then MarkOpened once the backing file is confirmed new) and
// returns the resulting current index.
func openNext(tbl *Table, now int64) uint32 {
	if tbl.Count == 0 {
		tbl.EnsureFirstSlot()
	} else {
		tbl.RotateSlot()
	}
	tbl.MarkOpened(now)
	return tbl.CurIdx
}

func TestTableAdvanceAndEvictRingLaws(t *testing.T) {
	// capacity 3 (file_remain_threshold=2)
	tbl := New(3)

	for i := int64(1); i <= 3; i++ {
		openNext(tbl, i*100)
	}
	assert.Equal(t, uint32(3), tbl.Count)
	assert.Equal(t, uint32(0), tbl.BegIdx)
	assert.Equal(t, uint32(2), tbl.CurIdx)

	// Ring is full: must evict before advancing again, per spec.
	_, ok := tbl.EvictOldest()
	require.True(t, ok)
	assert.Equal(t, uint32(2), tbl.Count)
	assert.Equal(t, uint32(1), tbl.BegIdx)

	openNext(tbl, 400)
	assert.Equal(t, uint32(3), tbl.Count)
	assert.Equal(t, uint32(0), tbl.CurIdx)

	// Never evict the active (current) slot.
	for tbl.Count > 1 {
		_, ok := tbl.EvictOldest()
		require.True(t, ok)
	}
	_, ok = tbl.EvictOldest()
	assert.False(t, ok, "must not evict the current slot")
}

func TestTableFileNumMonotone(t *testing.T) {
	tbl := New(5)
	var nums []uint32
	for i := int64(1); i <= 5; i++ {
		idx := openNext(tbl, i)
		nums = append(nums, tbl.Slots[idx].FileNum)
	}
	for i := 1; i < len(nums); i++ {
		assert.Greater(t, nums[i], nums[i-1])
	}
}

func TestTableSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tbl := New(4)
	openNext(tbl, 1000)
	openNext(tbl, 2000)
	tbl.SetCurrentFileSize(555)
	tbl.MarkBackwardsClock()

	require.NoError(t, tbl.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, tbl.MaxNum, loaded.MaxNum)
	assert.Equal(t, tbl.BegIdx, loaded.BegIdx)
	assert.Equal(t, tbl.CurIdx, loaded.CurIdx)
	assert.Equal(t, tbl.Count, loaded.Count)
	assert.Equal(t, tbl.LastAuditTime, loaded.LastAuditTime)
	assert.Equal(t, tbl.Slots, loaded.Slots)
	assert.True(t, loaded.Slots[loaded.CurIdx].BackwardsClock())
}

func TestTableLoadAbsentFile(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, tbl)
}

func TestTableLoadTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte{1, 2, 3}, 0o600))

	tbl, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, tbl)
}

func TestTableTotalSpace(t *testing.T) {
	tbl := New(3)
	openNext(tbl, 1)
	tbl.SetCurrentFileSize(100)
	openNext(tbl, 2)
	tbl.SetCurrentFileSize(200)

	assert.Equal(t, uint64(300), tbl.TotalSpace())
}

func TestTableCompactDropsDeadSlotsAndCapacityShrinks(t *testing.T) {
	tbl := New(5)
	for i := int64(1); i <= 5; i++ {
		openNext(tbl, i)
	}
	// Evict two oldest, leaving 3 live.
	tbl.EvictOldest()
	tbl.EvictOldest()
	require.Equal(t, uint32(3), tbl.Count)

	compacted := tbl.Compact(3)
	assert.Equal(t, uint32(3), compacted.MaxNum)
	assert.Equal(t, uint32(3), compacted.Count)
	assert.Equal(t, uint32(0), compacted.BegIdx)
	assert.Equal(t, uint32(2), compacted.CurIdx)

	// Live filenums stay strictly increasing after compaction.
	assert.Less(t, compacted.Slots[0].FileNum, compacted.Slots[1].FileNum)
	assert.Less(t, compacted.Slots[1].FileNum, compacted.Slots[2].FileNum)
}

func TestTableCompactEmpty(t *testing.T) {
	tbl := New(3)
	compacted := tbl.Compact(5)
	assert.Equal(t, uint32(0), compacted.Count)
	assert.Equal(t, uint32(5), compacted.MaxNum)
}

func TestSlotLiveAndBackwardsClock(t *testing.T) {
	var s Slot
	assert.False(t, s.Live())

	s.Ctime = 100
	assert.True(t, s.Live())
	assert.False(t, s.BackwardsClock())

	s.Ctime = -100
	assert.True(t, s.Live())
	assert.True(t, s.BackwardsClock())
}
