// Package daykey maps epoch-millisecond instants onto local calendar days.
// A day key is the canonical YYYY-MM-DD string for one day in the configured
// location; all day-boundary math here is DST safe because it goes through
// time.Date rather than fixed 24h offsets.
package daykey

import "time"

// Clock abstracts wall-clock reads for the ledgers and reconcilers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func SystemClock() Clock {
	return systemClock{}
}

func resolveLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// DayStart returns the epoch milliseconds of local midnight for the day
// containing epochMs.
func DayStart(epochMs int64, loc *time.Location) int64 {
	loc = resolveLocation(loc)
	t := time.UnixMilli(epochMs).In(loc)
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc).UnixMilli()
}

// NextDayStart returns local midnight of the day after the one containing
// epochMs.
func NextDayStart(epochMs int64, loc *time.Location) int64 {
	loc = resolveLocation(loc)
	t := time.UnixMilli(epochMs).In(loc)
	year, month, day := t.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, loc).UnixMilli()
}

// Format returns the canonical day key for the day containing epochMs.
func Format(epochMs int64, loc *time.Location) string {
	return time.UnixMilli(epochMs).In(resolveLocation(loc)).Format("2006-01-02")
}

// KeysInInterval returns the day keys of every local day the half-open
// interval [startMs, endMs) overlaps, even by a single millisecond.
func KeysInInterval(startMs, endMs int64, loc *time.Location) map[string]struct{} {
	result := map[string]struct{}{}
	if endMs <= startMs {
		return result
	}

	cursor := DayStart(startMs, loc)
	for cursor < endMs {
		next := NextDayStart(cursor, loc)
		overlapStart := max(startMs, cursor)
		overlapEnd := min(endMs, next)
		if overlapEnd > overlapStart {
			result[Format(cursor, loc)] = struct{}{}
		}
		cursor = next
	}
	return result
}
