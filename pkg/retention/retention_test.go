package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePreset(t *testing.T) {
	t.Parallel()

	preset, ok := ParsePreset("keep_1_week")
	assert.True(t, ok)
	assert.Equal(t, PresetKeep1Week, preset)

	preset, ok = ParsePreset(" DELETE_ALL ")
	assert.True(t, ok)
	assert.Equal(t, PresetDeleteAll, preset)

	_, ok = ParsePreset("forever")
	assert.False(t, ok)
}

func TestCutoffKeepsFullCalendarDays(t *testing.T) {
	t.Parallel()

	// Midday on March 10; a one-week window keeps March 4 through March 10.
	nowMs := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC).UnixMilli()

	cutoff := CutoffEpochMs(PresetKeep1Week, nowMs, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC).UnixMilli(), cutoff)

	// Month windows are calendar months, not 30-day blocks: one month back
	// from March 10 lands on February 10, which is the last pruned day.
	cutoff = CutoffEpochMs(PresetKeep1Month, nowMs, time.UTC)
	assert.Equal(t, time.Date(2026, time.February, 11, 0, 0, 0, 0, time.UTC).UnixMilli(), cutoff)

	cutoff = CutoffEpochMs(PresetKeep3Months, nowMs, time.UTC)
	assert.Equal(t, time.Date(2025, time.December, 11, 0, 0, 0, 0, time.UTC).UnixMilli(), cutoff)
}

func TestDeleteAllRemovesEverything(t *testing.T) {
	t.Parallel()

	nowMs := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC).UnixMilli()
	assert.True(t, ShouldDelete(PresetDeleteAll, nowMs, nowMs, time.UTC))
	assert.True(t, ShouldDelete(PresetDeleteAll, nowMs+3600_000, nowMs, time.UTC))
}

func TestShouldDelete(t *testing.T) {
	t.Parallel()

	nowMs := time.Date(2026, time.March, 10, 12, 30, 0, 0, time.UTC).UnixMilli()

	inside := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC).UnixMilli()
	assert.False(t, ShouldDelete(PresetKeep1Week, inside, nowMs, time.UTC))

	boundary := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.False(t, ShouldDelete(PresetKeep1Week, boundary, nowMs, time.UTC))

	outside := boundary - 1
	assert.True(t, ShouldDelete(PresetKeep1Week, outside, nowMs, time.UTC))

	assert.True(t, ShouldDelete(PresetDeleteAll, nowMs-1, nowMs, time.UTC))
}
