package collector

import "time"

// NextRotationTime returns the next time-based rotation boundary strictly
// after now, aligned to a multiple of age in now's time zone — so files
// roll on the minute/hour/day boundary rather than drifting with restarts.
// Returns the zero time if age <= 0 (time-based rotation disabled).
func NextRotationTime(now time.Time, age time.Duration) time.Time {
	if age <= 0 {
		return time.Time{}
	}
	_, offset := now.Zone()
	local := now.Add(time.Duration(offset) * time.Second).Unix()
	interval := int64(age.Seconds())
	local -= local % interval
	local += interval
	local -= int64(offset)
	return time.Unix(local, 0).UTC()
}

// rotationDecision records why rotation is being requested, matching
// spec.md §4.5 step 3's time_based/size_based distinction (an explicit
// SIGUSR1 request with neither reason set is treated as size-based).
type rotationDecision struct {
	requested  bool
	timeBased  bool
	sizeBased  bool
}

func decideRotation(now time.Time, nextRotation time.Time, policy Policy, currentSize int64, forced bool) rotationDecision {
	var d rotationDecision

	if policy.RotationAge > 0 && !nextRotation.IsZero() && !now.Before(nextRotation) {
		d.requested = true
		d.timeBased = true
	}

	if !d.requested && policy.RotationSize > 0 &&
		(currentSize >= policy.RotationSize || (policy.SpaceLimit > 0 && currentSize >= policy.SpaceLimit)) {
		d.requested = true
		d.sizeBased = true
	}

	if forced && !d.requested {
		d.requested = true
	}
	if d.requested && !d.timeBased && !d.sizeBased {
		d.sizeBased = true
	}
	return d
}
