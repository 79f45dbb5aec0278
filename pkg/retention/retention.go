package retention

import (
	"math"
	"strings"
	"time"
)

// Preset is a session-history retention window. Sessions awarded before
// the preset's cutoff are pruned from the remote session tree and forgotten
// locally.
type Preset string

const (
	PresetKeep1Week   Preset = "KEEP_1_WEEK"
	PresetKeep2Weeks  Preset = "KEEP_2_WEEKS"
	PresetKeep1Month  Preset = "KEEP_1_MONTH"
	PresetKeep3Months Preset = "KEEP_3_MONTHS"
	PresetDeleteAll   Preset = "DELETE_ALL"
)

// Week presets step back whole days; month presets use calendar months, so
// the window length tracks the month's actual day count.
var presetSpan = map[Preset]struct{ months, days int }{
	PresetKeep1Week:   {0, 7},
	PresetKeep2Weeks:  {0, 14},
	PresetKeep1Month:  {1, 0},
	PresetKeep3Months: {3, 0},
}

// ParsePreset maps a raw preset string onto a Preset. The boolean reports
// whether the value was recognized.
func ParsePreset(raw string) (Preset, bool) {
	preset := Preset(strings.ToUpper(strings.TrimSpace(raw)))
	switch preset {
	case PresetKeep1Week, PresetKeep2Weeks, PresetKeep1Month, PresetKeep3Months, PresetDeleteAll:
		return preset, true
	default:
		return "", false
	}
}

// CutoffEpochMs returns the instant before which records fall outside the
// retention window: local midnight of today stepped back by the preset's
// span, plus one day, so the stepped-back day itself is the last one pruned.
// DELETE_ALL cuts off everything.
func CutoffEpochMs(preset Preset, nowMs int64, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	if preset == PresetDeleteAll {
		return math.MaxInt64
	}

	span, ok := presetSpan[preset]
	if !ok {
		return 0
	}

	now := time.UnixMilli(nowMs).In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, -span.months, -span.days+1).UnixMilli()
}

// ShouldDelete reports whether a record awarded at awardedAtMs falls
// outside the preset's retention window.
func ShouldDelete(preset Preset, awardedAtMs, nowMs int64, loc *time.Location) bool {
	if preset == PresetDeleteAll {
		return true
	}
	return awardedAtMs < CutoffEpochMs(preset, nowMs, loc)
}
