package studytime

import "context"

// CloudSnapshot is the remote study-time state after staleness correction:
// a remote today bucket from a prior day reads as 0.
type CloudSnapshot struct {
	TotalVisibleMillis   int64
	TodayVisibleMillis   int64
	TodayDayStartEpochMs int64
	TotalStudyDays       int
	TotalStreakDays      int
}

func (s CloudSnapshot) TodayStudyMinutes() int64 {
	return s.TodayVisibleMillis / 60000
}

// CloudReconciler is the remote side of the study-time ledger. Its mutating
// operations mirror the local ledger's so cloud semantics match local
// semantics even when the two have diverged.
type CloudReconciler interface {
	RecordInterval(ctx context.Context, startMs, endMs int64) error
	RecordAppEntry(ctx context.Context, epochMs int64) error
	ApplyTimeBonus(ctx context.Context, bonusMillis int64) error
	ApplyManualBonus(ctx context.Context, bonusMillis int64, dayKey string) error
	FlushPending(ctx context.Context) error
	FetchSnapshot(ctx context.Context) (CloudSnapshot, error)
	ResetMetrics(ctx context.Context) error
}
