package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a Go duration string, treating "" and "0" (with or
// without a unit) as zero — the sentinel collector/policy.go reads as
// "this trigger is disabled".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// ParseSize parses a byte count with an optional KB/MB/GB/TB suffix
// (case-insensitive, "B" suffix optional), e.g. "10MB". The suffixes are
// binary multiples (KB = 1024 bytes, MB = 1024 KB, and so on); "1GiB" is
// not accepted.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	upper := strings.ToUpper(s)
	multiplier := int64(1)
	numeric := upper
	switch {
	case strings.HasSuffix(upper, "TB"):
		multiplier = 1 << 40
		numeric = strings.TrimSuffix(upper, "TB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1 << 30
		numeric = strings.TrimSuffix(upper, "GB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1 << 20
		numeric = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1 << 10
		numeric = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "B"):
		numeric = strings.TrimSuffix(upper, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(numeric), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	return n * multiplier, nil
}
