package studytime

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/studykeep/studykeep/pkg/daykey"
	"github.com/studykeep/studykeep/pkg/prefstore"
	"github.com/uptrace/bun"
)

// Namespace is the preference namespace holding all local study-time state.
const Namespace = "learning_study_metrics"

const (
	keyTodayStartEpochMs  = "today_start_epoch_ms"
	keyTodayVisibleMillis = "today_visible_millis"
	keyTotalVisibleMillis = "total_visible_millis"
	keyStudyDayKeys       = "study_day_keys"
	keyTotalStudyDays     = "total_study_days"
	keyStreakDayKeys      = "streak_day_keys"
	keyTotalStreakDays    = "total_streak_days"
)

// Snapshot is the local study-time state at one instant, with the today
// counter already rolled forward to the current day. Day counts are set
// cardinalities, never independent integers.
type Snapshot struct {
	TotalVisibleMillis   int64
	TodayVisibleMillis   int64
	TodayDayStartEpochMs int64
	StudyDayKeys         map[string]struct{}
	StreakDayKeys        map[string]struct{}
}

func (s Snapshot) TodayStudyMinutes() int64 {
	return s.TodayVisibleMillis / 60000
}

func (s Snapshot) TotalStudyDays() int {
	return len(s.StudyDayKeys)
}

func (s Snapshot) TotalStreakDays() int {
	return len(s.StreakDayKeys)
}

// Ledger is the local day-bucketed study-time ledger. The today counter is
// bucketed by local-midnight day start; intervals that cross midnight
// credit their full duration to the total but only the end-day portion to
// today. All methods serialize on one mutex.
type Ledger struct {
	mu    sync.Mutex
	store *prefstore.Store
	clock daykey.Clock
	loc   *time.Location
}

func NewLedger(db *bun.DB, clock daykey.Clock, loc *time.Location) *Ledger {
	if clock == nil {
		clock = daykey.SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{
		store: prefstore.New(db, Namespace),
		clock: clock,
		loc:   loc,
	}
}

// RecordVisibleInterval credits the half-open interval [startMs, endMs) of
// screen-visible time. Non-positive durations are ignored. Every local day
// the interval overlaps, even by a millisecond, becomes a study day.
func (l *Ledger) RecordVisibleInterval(ctx context.Context, startMs, endMs int64) error {
	if endMs <= startMs {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}

	state.totalVisibleMillis = saturatingAdd(state.totalVisibleMillis, endMs-startMs)

	endDayStart := daykey.DayStart(endMs, l.loc)
	if state.todayStartEpochMs != endDayStart {
		state.todayStartEpochMs = endDayStart
		state.todayVisibleMillis = 0
	}
	state.todayVisibleMillis = saturatingAdd(state.todayVisibleMillis, endMs-max(startMs, endDayStart))

	for key := range daykey.KeysInInterval(startMs, endMs, l.loc) {
		state.studyDayKeys[key] = struct{}{}
	}

	return l.persistLocked(ctx, state)
}

// RecordAppEntry marks the day containing epochMs as a streak day. Presence
// only; duration is irrelevant and repeats are idempotent. A non-positive
// epochMs means now.
func (l *Ledger) RecordAppEntry(ctx context.Context, epochMs int64) error {
	if epochMs <= 0 {
		epochMs = l.clock.Now().UnixMilli()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}

	key := daykey.Format(epochMs, l.loc)
	if _, ok := state.streakDayKeys[key]; ok {
		return nil
	}
	state.streakDayKeys[key] = struct{}{}

	return l.persistLocked(ctx, state)
}

// ApplyTimeBonus credits bonusMillis as if it were visible time earned
// today. Time only; no day is marked.
func (l *Ledger) ApplyTimeBonus(ctx context.Context, bonusMillis int64) error {
	if bonusMillis <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}

	l.creditBonusLocked(state, bonusMillis)
	return l.persistLocked(ctx, state)
}

// ApplyManualBonus credits bonusMillis to the today counter and marks the
// given day key as both a study day and a streak day. The key only controls
// set membership; the time always lands today. A blank key is a no-op.
func (l *Ledger) ApplyManualBonus(ctx context.Context, bonusMillis int64, dayKey string) error {
	dayKey = strings.TrimSpace(dayKey)
	if bonusMillis <= 0 || dayKey == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}

	l.creditBonusLocked(state, bonusMillis)
	state.studyDayKeys[dayKey] = struct{}{}
	state.streakDayKeys[dayKey] = struct{}{}
	return l.persistLocked(ctx, state)
}

func (l *Ledger) creditBonusLocked(state *ledgerState, bonusMillis int64) {
	todayStart := daykey.DayStart(l.clock.Now().UnixMilli(), l.loc)
	if state.todayStartEpochMs != todayStart {
		state.todayStartEpochMs = todayStart
		state.todayVisibleMillis = 0
	}
	state.todayVisibleMillis = saturatingAdd(state.todayVisibleMillis, bonusMillis)
	state.totalVisibleMillis = saturatingAdd(state.totalVisibleMillis, bonusMillis)
}

// LocalSnapshot returns the current state. If the local day has advanced
// past the stored day start, the today counter is rolled to 0 first and the
// correction persisted.
func (l *Ledger) LocalSnapshot(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadLocked(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	todayStart := daykey.DayStart(l.clock.Now().UnixMilli(), l.loc)
	if state.todayStartEpochMs != todayStart {
		state.todayStartEpochMs = todayStart
		state.todayVisibleMillis = 0
		if err := l.persistLocked(ctx, state); err != nil {
			return Snapshot{}, err
		}
	}

	return Snapshot{
		TotalVisibleMillis:   state.totalVisibleMillis,
		TodayVisibleMillis:   state.todayVisibleMillis,
		TodayDayStartEpochMs: state.todayStartEpochMs,
		StudyDayKeys:         state.studyDayKeys,
		StreakDayKeys:        state.streakDayKeys,
	}, nil
}

// TodayStudyMinutes returns whole minutes studied today.
func (l *Ledger) TodayStudyMinutes(ctx context.Context) (int64, error) {
	snapshot, err := l.LocalSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.TodayStudyMinutes(), nil
}

// TotalStudyMillis returns all visible time ever recorded.
func (l *Ledger) TotalStudyMillis(ctx context.Context) (int64, error) {
	snapshot, err := l.LocalSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.TotalVisibleMillis, nil
}

func (l *Ledger) TotalStudyDays(ctx context.Context) (int, error) {
	snapshot, err := l.LocalSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.TotalStudyDays(), nil
}

func (l *Ledger) TotalStreakDays(ctx context.Context) (int, error) {
	snapshot, err := l.LocalSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.TotalStreakDays(), nil
}

// ResetAllMetrics wipes every counter and day-key set. Explicit destructive
// user action only.
func (l *Ledger) ResetAllMetrics(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Batch().
		Remove(keyTodayStartEpochMs).
		Remove(keyTodayVisibleMillis).
		Remove(keyTotalVisibleMillis).
		Remove(keyStudyDayKeys).
		Remove(keyTotalStudyDays).
		Remove(keyStreakDayKeys).
		Remove(keyTotalStreakDays).
		Commit(ctx)
}

type ledgerState struct {
	todayStartEpochMs  int64
	todayVisibleMillis int64
	totalVisibleMillis int64
	studyDayKeys       map[string]struct{}
	streakDayKeys      map[string]struct{}
}

func (l *Ledger) loadLocked(ctx context.Context) (*ledgerState, error) {
	state := &ledgerState{}
	var err error

	if state.todayStartEpochMs, err = l.store.Int64(ctx, keyTodayStartEpochMs, 0); err != nil {
		return nil, err
	}
	if state.todayVisibleMillis, err = l.store.Int64(ctx, keyTodayVisibleMillis, 0); err != nil {
		return nil, err
	}
	if state.totalVisibleMillis, err = l.store.Int64(ctx, keyTotalVisibleMillis, 0); err != nil {
		return nil, err
	}
	if state.studyDayKeys, err = l.store.StringSet(ctx, keyStudyDayKeys); err != nil {
		return nil, err
	}
	if state.streakDayKeys, err = l.store.StringSet(ctx, keyStreakDayKeys); err != nil {
		return nil, err
	}

	// Negative counters read as 0.
	state.todayVisibleMillis = max(int64(0), state.todayVisibleMillis)
	state.totalVisibleMillis = max(int64(0), state.totalVisibleMillis)
	return state, nil
}

func (l *Ledger) persistLocked(ctx context.Context, state *ledgerState) error {
	return l.store.Batch().
		PutInt64(keyTodayStartEpochMs, state.todayStartEpochMs).
		PutInt64(keyTodayVisibleMillis, state.todayVisibleMillis).
		PutInt64(keyTotalVisibleMillis, state.totalVisibleMillis).
		PutStringSet(keyStudyDayKeys, state.studyDayKeys).
		PutInt64(keyTotalStudyDays, int64(len(state.studyDayKeys))).
		PutStringSet(keyStreakDayKeys, state.streakDayKeys).
		PutInt64(keyTotalStreakDays, int64(len(state.streakDayKeys))).
		Commit(ctx)
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
