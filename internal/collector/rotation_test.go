package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRotationTimeAlignsToBoundary(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 8, 6, 10, 17, 43, 0, loc)

	next := NextRotationTime(now, time.Hour)
	require.False(t, next.IsZero())
	assert.Equal(t, time.Date(2026, 8, 6, 11, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextRotationTimeZeroAgeDisabled(t *testing.T) {
	now := time.Date(2026, 8, 6, 10, 17, 43, 0, time.UTC)
	assert.True(t, NextRotationTime(now, 0).IsZero())
	assert.True(t, NextRotationTime(now, -time.Hour).IsZero())
}

func TestNextRotationTimeExactlyOnBoundary(t *testing.T) {
	now := time.Date(2026, 8, 6, 11, 0, 0, 0, time.UTC)
	next := NextRotationTime(now, time.Hour)
	assert.Equal(t, time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestDecideRotationTimeBased(t *testing.T) {
	now := time.Date(2026, 8, 6, 11, 0, 1, 0, time.UTC)
	next := time.Date(2026, 8, 6, 11, 0, 0, 0, time.UTC)
	policy := Policy{RotationAge: time.Hour}

	d := decideRotation(now, next, policy, 0, false)
	assert.True(t, d.requested)
	assert.True(t, d.timeBased)
	assert.False(t, d.sizeBased)
}

func TestDecideRotationSizeBased(t *testing.T) {
	now := time.Now()
	policy := Policy{RotationSize: 1024}

	d := decideRotation(now, time.Time{}, policy, 2048, false)
	assert.True(t, d.requested)
	assert.True(t, d.sizeBased)
	assert.False(t, d.timeBased)
}

func TestDecideRotationSpaceLimitBased(t *testing.T) {
	now := time.Now()
	policy := Policy{RotationSize: 1 << 30, SpaceLimit: 512}

	d := decideRotation(now, time.Time{}, policy, 600, false)
	assert.True(t, d.requested)
	assert.True(t, d.sizeBased)
}

func TestDecideRotationNoneRequested(t *testing.T) {
	now := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	next := time.Date(2026, 8, 6, 11, 0, 0, 0, time.UTC)
	policy := Policy{RotationAge: time.Hour, RotationSize: 1024}

	d := decideRotation(now, next, policy, 10, false)
	assert.False(t, d.requested)
}

func TestDecideRotationForcedWithNoOtherReasonIsSizeBased(t *testing.T) {
	now := time.Now()
	policy := Policy{}

	d := decideRotation(now, time.Time{}, policy, 0, true)
	assert.True(t, d.requested)
	assert.True(t, d.sizeBased)
	assert.False(t, d.timeBased)
}

func TestDecideRotationForcedDoesNotOverrideTimeBased(t *testing.T) {
	now := time.Date(2026, 8, 6, 11, 0, 1, 0, time.UTC)
	next := time.Date(2026, 8, 6, 11, 0, 0, 0, time.UTC)
	policy := Policy{RotationAge: time.Hour}

	d := decideRotation(now, next, policy, 0, true)
	assert.True(t, d.requested)
	assert.True(t, d.timeBased)
	assert.False(t, d.sizeBased)
}
