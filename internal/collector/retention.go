package collector

import (
	"fmt"
	"time"
)

// RunRetention evicts the oldest audit file, one slot per loop iteration,
// re-checking after each eviction until no trigger holds or only the active
// slot remains. The simplified retention invariant it applies: evict the oldest
// slot if its age is at or beyond remain_age (time-priority) or the total
// on-disk archive size is at or beyond space_limit (space-priority), with
// the absolute 1 TiB cap and the live-count-over-threshold check always
// applying regardless of cleanup_policy. It never evicts the active
// (currently open) slot.
//
// The original collector's cleanup pass additionally peeks at the next
// oldest item before deciding whether the current one can be spared; this
// implementation deliberately skips that lookahead in favor of the single
// age-or-cap test above.
func (c *Collector) RunRetention(now time.Time) {
	if !c.policy.Enabled {
		return
	}
	for {
		if c.table.Count <= 1 {
			return
		}
		oldest := c.table.Slots[c.table.BegIdx]
		total := c.table.TotalSpace() + uint64(c.files.CurrentSize())

		overCap := total > absoluteSpaceCap
		overLimit := c.policy.SpaceLimit > 0 && total >= uint64(c.policy.SpaceLimit)
		overCount := c.policy.FileRemainThreshold > 0 && c.table.Count > c.policy.FileRemainThreshold

		var ageExceeded bool
		if oldest.Ctime > 0 && c.policy.RemainAge > 0 {
			age := now.Unix() - oldest.Ctime
			ageExceeded = age >= int64(c.policy.RemainAge.Seconds())
		}

		shouldEvict := overCap ||
			overCount ||
			(c.policy.SpacePriority && overLimit) ||
			(!c.policy.SpacePriority && ageExceeded)

		if !shouldEvict {
			if overLimit {
				c.warnOverLimit(total)
			}
			return
		}
		if overLimit && !overCap {
			c.warnOverLimit(total)
		}
		if !c.evictOldest(now) {
			return
		}
	}
}

// warnOverLimit logs once per spaceIntervalSize crossed beyond space_limit,
// matching the original's SPACE_INTERVAL_SIZE-gated repeat warning instead
// of logging on every retention tick.
func (c *Collector) warnOverLimit(total uint64) {
	limit := uint64(c.policy.SpaceLimit)
	if total <= limit {
		c.spaceBeyondSize = 0
		return
	}
	beyond := total - limit
	if beyond/spaceIntervalSize > c.spaceBeyondSize/spaceIntervalSize {
		c.log.Warn("audit archive exceeds configured space_limit",
			"total_bytes", total, "space_limit", limit, "beyond_bytes", beyond)
	}
	c.spaceBeyondSize = beyond
}

// evictOldest removes the oldest slot, unlinks its backing file, persists
// the index, and records an internal_event, matching pgaudit_cleanup's
// remove-and-log step. Returns false if there was nothing evictable (table
// empty, or only the active slot remains).
func (c *Collector) evictOldest(now time.Time) bool {
	slot, ok := c.table.EvictOldest()
	if !ok {
		return false
	}
	if err := c.files.Unlink(slot.FileNum); err != nil {
		c.log.Error("failed to unlink evicted audit file", "error", err, "filenum", slot.FileNum)
	}
	if err := c.table.Save(c.dir); err != nil {
		c.log.Error("failed to persist index after eviction", "error", err)
	}
	c.reg.EvictionsTotal.Inc()
	c.WriteInternalEvent("file", fmt.Sprintf("remove an audit file(number: %d)", slot.FileNum))
	return true
}
