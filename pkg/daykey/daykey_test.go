package daykey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestDayStartAndFormat(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	at := time.Date(2026, 5, 14, 18, 30, 45, 0, loc)

	start := DayStart(at.UnixMilli(), loc)
	assert.Equal(t, time.Date(2026, 5, 14, 0, 0, 0, 0, loc).UnixMilli(), start)
	assert.Equal(t, "2026-05-14", Format(at.UnixMilli(), loc))
	assert.Equal(t, "2026-05-14", Format(start, loc))
}

func TestNextDayStartCrossesMonthBoundary(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	at := time.Date(2026, 5, 31, 23, 0, 0, 0, loc)

	next := NextDayStart(at.UnixMilli(), loc)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, loc).UnixMilli(), next)
}

func TestKeysInIntervalSingleDay(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	start := time.Date(2026, 5, 14, 9, 0, 0, 0, loc).UnixMilli()
	end := time.Date(2026, 5, 14, 10, 0, 0, 0, loc).UnixMilli()

	keys := KeysInInterval(start, end, loc)
	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "2026-05-14")
}

func TestKeysInIntervalMidnightCrossing(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	start := time.Date(2026, 5, 14, 23, 50, 0, 0, loc).UnixMilli()
	end := time.Date(2026, 5, 15, 0, 10, 0, 0, loc).UnixMilli()

	keys := KeysInInterval(start, end, loc)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "2026-05-14")
	assert.Contains(t, keys, "2026-05-15")
}

func TestKeysInIntervalOneMillisecondOverlap(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	midnight := time.Date(2026, 5, 15, 0, 0, 0, 0, loc).UnixMilli()

	// Ends one millisecond into the new day.
	keys := KeysInInterval(midnight-60_000, midnight+1, loc)
	assert.Len(t, keys, 2)

	// Half-open: ending exactly at midnight does not touch the new day.
	keys = KeysInInterval(midnight-60_000, midnight, loc)
	assert.Len(t, keys, 1)
	assert.Contains(t, keys, "2026-05-14")
}

func TestKeysInIntervalEmptyForNonPositiveSpan(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	at := time.Date(2026, 5, 14, 12, 0, 0, 0, loc).UnixMilli()

	assert.Empty(t, KeysInInterval(at, at, loc))
	assert.Empty(t, KeysInInterval(at, at-1, loc))
}

func TestDayStartAcrossDSTTransition(t *testing.T) {
	t.Parallel()

	// The US spring-forward day is 23 hours long; day-boundary math still
	// lands on civil midnight.
	loc := mustLoadLocation(t, "America/New_York")
	at := time.Date(2026, 3, 8, 15, 0, 0, 0, loc)

	start := DayStart(at.UnixMilli(), loc)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, loc).UnixMilli(), start)

	next := NextDayStart(at.UnixMilli(), loc)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, loc).UnixMilli(), next)
	assert.Equal(t, 23*time.Hour, time.Duration(next-start)*time.Millisecond)
}
