package studysync

import (
	"math"
)

// PendingDelta is the not-yet-flushed accumulation of study-time changes
// for one account. Deltas are additive: totals sum, today-portions sum
// within a day, and day-key sets union.
type PendingDelta struct {
	UID              string
	TotalDeltaMillis int64
	TodayDeltaMillis int64
	DayStartEpochMs  int64
	StudyDayKeys     map[string]struct{}
	StreakDayKeys    map[string]struct{}
}

func (d PendingDelta) isEmpty() bool {
	return d.TotalDeltaMillis == 0 &&
		d.TodayDeltaMillis == 0 &&
		len(d.StudyDayKeys) == 0 &&
		len(d.StreakDayKeys) == 0
}

// mergeDeltas folds next into base. Totals sum; the today-portion sums only
// when both deltas belong to the same day, otherwise the newer delta's
// today-portion replaces the older one; day-key sets union.
func mergeDeltas(base, next PendingDelta) PendingDelta {
	merged := PendingDelta{
		UID:              next.UID,
		TotalDeltaMillis: saturatingAdd(base.TotalDeltaMillis, next.TotalDeltaMillis),
		TodayDeltaMillis: next.TodayDeltaMillis,
		DayStartEpochMs:  next.DayStartEpochMs,
		StudyDayKeys:     unionKeys(base.StudyDayKeys, next.StudyDayKeys),
		StreakDayKeys:    unionKeys(base.StreakDayKeys, next.StreakDayKeys),
	}
	if base.DayStartEpochMs == next.DayStartEpochMs {
		merged.TodayDeltaMillis = saturatingAdd(base.TodayDeltaMillis, next.TodayDeltaMillis)
	}
	return merged
}

// remoteState is the decoded remote study-time document.
type remoteState struct {
	TotalVisibleMillis   int64
	TodayVisibleMillis   int64
	TodayDayStartEpochMs int64
	StudyDayKeys         map[string]struct{}
	StreakDayKeys        map[string]struct{}
}

// mergeRemoteWithPending applies a pending delta to remote state. The total
// sums; today sums when the remote document is on the same day as the
// delta, otherwise the delta's today-portion replaces the stale remote
// value; the merged day-start is always the delta's.
func mergeRemoteWithPending(remote remoteState, delta PendingDelta) remoteState {
	merged := remoteState{
		TotalVisibleMillis:   saturatingAdd(remote.TotalVisibleMillis, delta.TotalDeltaMillis),
		TodayVisibleMillis:   delta.TodayDeltaMillis,
		TodayDayStartEpochMs: delta.DayStartEpochMs,
		StudyDayKeys:         unionKeys(remote.StudyDayKeys, delta.StudyDayKeys),
		StreakDayKeys:        unionKeys(remote.StreakDayKeys, delta.StreakDayKeys),
	}
	if remote.TodayDayStartEpochMs == delta.DayStartEpochMs {
		merged.TodayVisibleMillis = saturatingAdd(remote.TodayVisibleMillis, delta.TodayDeltaMillis)
	}
	return merged
}

// mergeTimeBonus credits a bonus directly into remote state with the same
// accumulate-or-replace rule for the today bucket. Time only; day-key sets
// are untouched.
func mergeTimeBonus(remote remoteState, bonusMillis, bonusDayStart int64) remoteState {
	merged := remoteState{
		TotalVisibleMillis:   saturatingAdd(remote.TotalVisibleMillis, bonusMillis),
		TodayVisibleMillis:   bonusMillis,
		TodayDayStartEpochMs: bonusDayStart,
		StudyDayKeys:         remote.StudyDayKeys,
		StreakDayKeys:        remote.StreakDayKeys,
	}
	if remote.TodayDayStartEpochMs == bonusDayStart {
		merged.TodayVisibleMillis = saturatingAdd(remote.TodayVisibleMillis, bonusMillis)
	}
	return merged
}

func unionKeys(a, b map[string]struct{}) map[string]struct{} {
	union := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		union[key] = struct{}{}
	}
	for key := range b {
		union[key] = struct{}{}
	}
	return union
}

func saturatingAdd(base, delta int64) int64 {
	if delta <= 0 {
		return base
	}
	if base > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return base + delta
}
