package studysync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/studykeep/studykeep/pkg/daykey"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/identity"
	"github.com/studykeep/studykeep/pkg/prefstore"
	"github.com/studykeep/studykeep/pkg/studytime"
	"github.com/uptrace/bun"
)

const (
	keyPendingUID              = "pending_uid"
	keyPendingTotalDeltaMillis = "pending_total_delta_millis"
	keyPendingTodayDeltaMillis = "pending_today_delta_millis"
	keyPendingDayStartEpochMs  = "pending_day_start_epoch_ms"
	keyPendingStudyDayKeys     = "pending_study_day_keys"
	keyPendingStreakDayKeys    = "pending_streak_day_keys"
)

const (
	fieldTotalVisibleMillis   = "total_visible_millis"
	fieldTodayVisibleMillis   = "today_visible_millis"
	fieldTodayDayStartEpochMs = "today_day_start_epoch_ms"
	fieldStudyDayKeys         = "study_day_keys"
	fieldTotalStudyDays       = "total_study_days"
	fieldStreakDayKeys        = "streak_day_keys"
	fieldTotalStreakDays      = "total_streak_days"
	fieldUpdatedAtEpochMs     = "updated_at_epoch_ms"
)

// Reconciler accumulates a per-account pending delta from the same
// operations the local ledger handles and merges it into the account's
// remote study-time document. The pending delta survives restarts; it is
// discarded, never flushed, if the signed-in account changes first.
type Reconciler struct {
	mu       sync.Mutex
	identity identity.Provider
	docs     docstore.Store
	store    *prefstore.Store
	clock    daykey.Clock
	loc      *time.Location
	log      logger.Logger
}

func NewReconciler(db *bun.DB, provider identity.Provider, docs docstore.Store, clock daykey.Clock, loc *time.Location) *Reconciler {
	if clock == nil {
		clock = daykey.SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		identity: provider,
		docs:     docs,
		store:    prefstore.New(db, studytime.Namespace),
		clock:    clock,
		loc:      loc,
		log:      logger.New(),
	}
}

// RecordInterval stages the interval's delta for the signed-in account and
// attempts an immediate flush. The interval splitting matches the local
// ledger exactly. A failed flush leaves the delta pending for the next
// mutating call; signed out is a no-op.
func (r *Reconciler) RecordInterval(ctx context.Context, startMs, endMs int64) error {
	if endMs <= startMs {
		return nil
	}

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	dayStart := daykey.DayStart(endMs, r.loc)
	delta := PendingDelta{
		UID:              uid,
		TotalDeltaMillis: endMs - startMs,
		TodayDeltaMillis: endMs - max(startMs, dayStart),
		DayStartEpochMs:  dayStart,
		StudyDayKeys:     daykey.KeysInInterval(startMs, endMs, r.loc),
		StreakDayKeys:    map[string]struct{}{},
	}
	return r.stageAndFlush(ctx, delta)
}

// RecordAppEntry stages an app-entry streak mark for the signed-in account.
func (r *Reconciler) RecordAppEntry(ctx context.Context, epochMs int64) error {
	if epochMs <= 0 {
		epochMs = r.clock.Now().UnixMilli()
	}

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	delta := PendingDelta{
		UID:             uid,
		DayStartEpochMs: daykey.DayStart(epochMs, r.loc),
		StudyDayKeys:    map[string]struct{}{},
		StreakDayKeys:   map[string]struct{}{daykey.Format(epochMs, r.loc): {}},
	}
	return r.stageAndFlush(ctx, delta)
}

// ApplyManualBonus stages a bonus marked under the given day key. The day
// key only controls set membership; the time always lands in the today
// bucket. A blank day key is a no-op.
func (r *Reconciler) ApplyManualBonus(ctx context.Context, bonusMillis int64, dayKey string) error {
	dayKey = strings.TrimSpace(dayKey)
	if bonusMillis <= 0 || dayKey == "" {
		return nil
	}

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	delta := PendingDelta{
		UID:              uid,
		TotalDeltaMillis: bonusMillis,
		TodayDeltaMillis: bonusMillis,
		DayStartEpochMs:  daykey.DayStart(r.clock.Now().UnixMilli(), r.loc),
		StudyDayKeys:     map[string]struct{}{dayKey: {}},
		StreakDayKeys:    map[string]struct{}{dayKey: {}},
	}
	return r.stageAndFlush(ctx, delta)
}

// ApplyTimeBonus credits a bonus straight into the remote document without
// staging. Unlike the staged operations, a failure here surfaces to the
// caller.
func (r *Reconciler) ApplyTimeBonus(ctx context.Context, bonusMillis int64) error {
	if bonusMillis <= 0 {
		return nil
	}

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	nowMs := r.clock.Now().UnixMilli()
	bonusDayStart := daykey.DayStart(nowMs, r.loc)

	return r.docs.RunInTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		remote, err := readRemoteState(ctx, tx, uid)
		if err != nil {
			return err
		}
		merged := mergeTimeBonus(remote, bonusMillis, bonusDayStart)
		// Time fields only; the bonus marks no day.
		return tx.Set(ctx, docstore.StudyTimeDoc(uid), docstore.Fields{
			fieldTotalVisibleMillis:   merged.TotalVisibleMillis,
			fieldTodayVisibleMillis:   merged.TodayVisibleMillis,
			fieldTodayDayStartEpochMs: merged.TodayDayStartEpochMs,
			fieldUpdatedAtEpochMs:     nowMs,
		}, true)
	})
}

// FlushPending merges the staged delta into the account's remote document.
// No pending delta is a successful no-op. A delta staged under a different
// account than the one currently signed in is discarded without being
// applied.
func (r *Reconciler) FlushPending(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Reconciler) flushLocked(ctx context.Context) error {
	delta, ok, err := r.readPending(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	// Signed out keeps the delta staged so a re-sign-in as the same account
	// still flushes it. Only a different account discards it.
	if uid == "" {
		return nil
	}
	if uid != delta.UID {
		return r.clearPending(ctx)
	}

	nowMs := r.clock.Now().UnixMilli()
	err = r.docs.RunInTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		remote, err := readRemoteState(ctx, tx, uid)
		if err != nil {
			return err
		}
		merged := mergeRemoteWithPending(remote, delta)
		return writeRemoteState(ctx, tx, uid, merged, nowMs)
	})
	if err != nil {
		return err
	}
	return r.clearPending(ctx)
}

// FetchSnapshot reads the account's remote document. A remote today bucket
// from a prior day reads as 0 so a fresh snapshot never shows stale "today"
// time. Signed out returns an empty snapshot.
func (r *Reconciler) FetchSnapshot(ctx context.Context) (studytime.CloudSnapshot, error) {
	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return studytime.CloudSnapshot{}, err
	}
	if uid == "" {
		return studytime.CloudSnapshot{}, nil
	}

	fields, ok, err := r.docs.Get(ctx, docstore.StudyTimeDoc(uid))
	if err != nil {
		return studytime.CloudSnapshot{}, err
	}
	if !ok {
		return studytime.CloudSnapshot{}, nil
	}

	remote := decodeRemoteState(fields)
	localDayStart := daykey.DayStart(r.clock.Now().UnixMilli(), r.loc)
	if remote.TodayDayStartEpochMs != localDayStart {
		remote.TodayVisibleMillis = 0
		remote.TodayDayStartEpochMs = localDayStart
	}

	return studytime.CloudSnapshot{
		TotalVisibleMillis:   remote.TotalVisibleMillis,
		TodayVisibleMillis:   remote.TodayVisibleMillis,
		TodayDayStartEpochMs: remote.TodayDayStartEpochMs,
		TotalStudyDays:       resolveTotalDays(fields, fieldStudyDayKeys, fieldTotalStudyDays),
		TotalStreakDays:      resolveTotalDays(fields, fieldStreakDayKeys, fieldTotalStreakDays),
	}, nil
}

// ResetMetrics zeroes the account's remote document and drops any staged
// delta. Signed out only drops the staged delta.
func (r *Reconciler) ResetMetrics(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid != "" {
		err = r.docs.Set(ctx, docstore.StudyTimeDoc(uid), docstore.Fields{
			fieldTotalVisibleMillis:   int64(0),
			fieldTodayVisibleMillis:   int64(0),
			fieldTodayDayStartEpochMs: daykey.DayStart(r.clock.Now().UnixMilli(), r.loc),
			fieldStudyDayKeys:         []string{},
			fieldTotalStudyDays:       int64(0),
			fieldStreakDayKeys:        []string{},
			fieldTotalStreakDays:      int64(0),
			fieldUpdatedAtEpochMs:     r.clock.Now().UnixMilli(),
		}, false)
		if err != nil {
			return err
		}
	}
	return r.clearPending(ctx)
}

// stageAndFlush merges the delta into any staged one and immediately tries
// to flush. Flush failure is logged and swallowed; the delta stays staged
// for the next mutating call.
func (r *Reconciler) stageAndFlush(ctx context.Context, delta PendingDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok, err := r.readPending(ctx)
	if err != nil {
		return err
	}
	if ok && existing.UID == delta.UID {
		delta = mergeDeltas(existing, delta)
	}

	if err := r.writePending(ctx, delta); err != nil {
		return err
	}

	if err := r.flushLocked(ctx); err != nil {
		r.log.Err(err).Error("study time flush failed, delta left pending")
	}
	return nil
}

func (r *Reconciler) readPending(ctx context.Context) (PendingDelta, bool, error) {
	delta := PendingDelta{}
	var err error

	uid, err := r.store.String(ctx, keyPendingUID, "")
	if err != nil {
		return delta, false, err
	}
	delta.UID = strings.TrimSpace(uid)

	if delta.TotalDeltaMillis, err = r.store.Int64(ctx, keyPendingTotalDeltaMillis, 0); err != nil {
		return delta, false, err
	}
	if delta.TodayDeltaMillis, err = r.store.Int64(ctx, keyPendingTodayDeltaMillis, 0); err != nil {
		return delta, false, err
	}
	if delta.DayStartEpochMs, err = r.store.Int64(ctx, keyPendingDayStartEpochMs, 0); err != nil {
		return delta, false, err
	}
	if delta.StudyDayKeys, err = r.store.StringSet(ctx, keyPendingStudyDayKeys); err != nil {
		return delta, false, err
	}
	if delta.StreakDayKeys, err = r.store.StringSet(ctx, keyPendingStreakDayKeys); err != nil {
		return delta, false, err
	}

	if delta.UID == "" || delta.isEmpty() {
		return PendingDelta{}, false, nil
	}

	// Normalize deltas persisted by older builds: a missing day start maps
	// to the day the delta is flushed, and time recorded without day keys
	// backfills the flush day as a study day.
	delta.TotalDeltaMillis = max(int64(0), delta.TotalDeltaMillis)
	delta.TodayDeltaMillis = max(int64(0), delta.TodayDeltaMillis)
	if delta.DayStartEpochMs == 0 {
		nowMs := r.clock.Now().UnixMilli()
		delta.DayStartEpochMs = daykey.DayStart(nowMs, r.loc)
	}
	if delta.TotalDeltaMillis > 0 && len(delta.StudyDayKeys) == 0 {
		delta.StudyDayKeys = map[string]struct{}{daykey.Format(delta.DayStartEpochMs, r.loc): {}}
	}
	return delta, true, nil
}

func (r *Reconciler) writePending(ctx context.Context, delta PendingDelta) error {
	return r.store.Batch().
		PutString(keyPendingUID, delta.UID).
		PutInt64(keyPendingTotalDeltaMillis, delta.TotalDeltaMillis).
		PutInt64(keyPendingTodayDeltaMillis, delta.TodayDeltaMillis).
		PutInt64(keyPendingDayStartEpochMs, delta.DayStartEpochMs).
		PutStringSet(keyPendingStudyDayKeys, delta.StudyDayKeys).
		PutStringSet(keyPendingStreakDayKeys, delta.StreakDayKeys).
		Commit(ctx)
}

func (r *Reconciler) clearPending(ctx context.Context) error {
	return r.store.Batch().
		Remove(keyPendingUID).
		Remove(keyPendingTotalDeltaMillis).
		Remove(keyPendingTodayDeltaMillis).
		Remove(keyPendingDayStartEpochMs).
		Remove(keyPendingStudyDayKeys).
		Remove(keyPendingStreakDayKeys).
		Commit(ctx)
}

func readRemoteState(ctx context.Context, tx docstore.Tx, uid string) (remoteState, error) {
	fields, _, err := tx.Get(ctx, docstore.StudyTimeDoc(uid))
	if err != nil {
		return remoteState{}, err
	}
	return decodeRemoteState(fields), nil
}

func decodeRemoteState(fields docstore.Fields) remoteState {
	state := remoteState{
		TotalVisibleMillis:   max(int64(0), docstore.Int64Field(fields, fieldTotalVisibleMillis, 0)),
		TodayVisibleMillis:   max(int64(0), docstore.Int64Field(fields, fieldTodayVisibleMillis, 0)),
		TodayDayStartEpochMs: docstore.Int64Field(fields, fieldTodayDayStartEpochMs, 0),
		StudyDayKeys:         map[string]struct{}{},
		StreakDayKeys:        map[string]struct{}{},
	}
	for _, key := range docstore.StringListField(fields, fieldStudyDayKeys) {
		state.StudyDayKeys[key] = struct{}{}
	}
	for _, key := range docstore.StringListField(fields, fieldStreakDayKeys) {
		state.StreakDayKeys[key] = struct{}{}
	}
	return state
}

func writeRemoteState(ctx context.Context, tx docstore.Tx, uid string, state remoteState, nowMs int64) error {
	return tx.Set(ctx, docstore.StudyTimeDoc(uid), docstore.Fields{
		fieldTotalVisibleMillis:   state.TotalVisibleMillis,
		fieldTodayVisibleMillis:   state.TodayVisibleMillis,
		fieldTodayDayStartEpochMs: state.TodayDayStartEpochMs,
		fieldStudyDayKeys:         sortedKeys(state.StudyDayKeys),
		fieldTotalStudyDays:       int64(len(state.StudyDayKeys)),
		fieldStreakDayKeys:        sortedKeys(state.StreakDayKeys),
		fieldTotalStreakDays:      int64(len(state.StreakDayKeys)),
		fieldUpdatedAtEpochMs:     nowMs,
	}, true)
}

// resolveTotalDays prefers the day-key set's cardinality and falls back to
// the stored count for documents written before key sets existed.
func resolveTotalDays(fields docstore.Fields, keysField, countField string) int {
	if keys := docstore.StringListField(fields, keysField); len(keys) > 0 {
		return len(keys)
	}
	return int(max(int64(0), docstore.Int64Field(fields, countField, 0)))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
