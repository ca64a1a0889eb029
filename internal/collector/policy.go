package collector

import "time"

// absoluteSpaceCap is the hard ceiling beyond which time-priority
// retention evicts regardless of remain_age, matching SPACE_MAXIMUM_SIZE
// in the original collector.
const absoluteSpaceCap = 1 << 40 // 1 TiB

// spaceIntervalSize is the step at which the over-limit warning repeats,
// matching SPACE_INTERVAL_SIZE.
const spaceIntervalSize = 10 * 1024 * 1024 // 10 MiB

// Policy holds the subset of configuration (internal/config's decoded HCL)
// that drives rotation and retention decisions.
type Policy struct {
	Enabled bool

	RotationAge  time.Duration // 0 disables time-based rotation
	RotationSize int64         // bytes; 0 disables size-based rotation
	SpaceLimit   int64         // bytes

	FileRemainThreshold uint32        // retention count (index capacity is this + 1)
	RemainAge           time.Duration // 0 disables age-based retention
	SpacePriority       bool          // cleanup_policy: true=space-priority(1), false=time-priority(0)
}
