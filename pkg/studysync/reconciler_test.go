package studysync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type stubIdentity struct {
	uid string
}

func (s *stubIdentity) CurrentUID(ctx context.Context) (string, error) {
	return s.uid, nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

// failingDocs wraps a store and fails every transaction while tripped.
type failingDocs struct {
	docstore.Store
	failing bool
}

func (f *failingDocs) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	if f.failing {
		return errFlushFailed
	}
	return f.Store.RunInTx(ctx, fn)
}

var errFlushFailed = sql.ErrConnDone

func localMs(year int, month time.Month, day, hour, minute, second int) int64 {
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC).UnixMilli()
}

type fixture struct {
	docs       *failingDocs
	identity   *stubIdentity
	clock      *fixedClock
	reconciler *Reconciler
}

func newFixture(t *testing.T, uid string, nowMs int64) *fixture {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	docs := &failingDocs{Store: docstore.NewSQLStore(db)}
	provider := &stubIdentity{uid: uid}
	clock := &fixedClock{now: time.UnixMilli(nowMs)}

	return &fixture{
		docs:       docs,
		identity:   provider,
		clock:      clock,
		reconciler: NewReconciler(db, provider, docs, clock, time.UTC),
	}
}

func (f *fixture) remoteSnapshot(t *testing.T, uid string) docstore.Fields {
	t.Helper()

	fields, ok, err := f.docs.Get(context.Background(), docstore.StudyTimeDoc(uid))
	require.NoError(t, err)
	require.True(t, ok)
	return fields
}

func TestRecordIntervalFlushesImmediately(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-1", start+10*60000)
	ctx := context.Background()

	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(10*60000), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(10*60000), docstore.Int64Field(fields, "today_visible_millis", 0))
	assert.Equal(t, []string{"2026-03-10"}, docstore.StringListField(fields, "study_day_keys"))
	assert.Equal(t, int64(1), docstore.Int64Field(fields, "total_study_days", 0))

	// Flush succeeded, so nothing stays pending.
	_, pending, err := f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestFailedFlushLeavesDeltaPending(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-1", start+10*60000)
	ctx := context.Background()

	f.docs.failing = true
	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	delta, pending, err := f.reconciler.readPending(ctx)
	require.NoError(t, err)
	require.True(t, pending)
	assert.Equal(t, "uid-1", delta.UID)
	assert.Equal(t, int64(10*60000), delta.TotalDeltaMillis)

	// The next mutating call retries the flush.
	f.docs.failing = false
	require.NoError(t, f.reconciler.RecordInterval(ctx, start+10*60000, start+15*60000))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(15*60000), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(15*60000), docstore.Int64Field(fields, "today_visible_millis", 0))

	_, pending, err = f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestPendingDeltaDiscardedOnAccountSwitch(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-a", start+10*60000)
	ctx := context.Background()

	f.docs.failing = true
	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	f.identity.uid = "uid-b"
	f.docs.failing = false

	require.NoError(t, f.reconciler.FlushPending(ctx))

	// Neither account's document received the orphaned delta.
	_, ok, err := f.docs.Get(ctx, docstore.StudyTimeDoc("uid-a"))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = f.docs.Get(ctx, docstore.StudyTimeDoc("uid-b"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, pending, err := f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestPendingDeltaSurvivesSignOut(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-a", start+10*60000)
	ctx := context.Background()

	f.docs.failing = true
	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	// Signing out must not discard the delta; the same account may return.
	f.identity.uid = ""
	f.docs.failing = false
	require.NoError(t, f.reconciler.FlushPending(ctx))

	_, pending, err := f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	f.identity.uid = "uid-a"
	require.NoError(t, f.reconciler.FlushPending(ctx))

	fields := f.remoteSnapshot(t, "uid-a")
	assert.Equal(t, int64(10*60000), docstore.Int64Field(fields, "total_visible_millis", 0))

	_, pending, err = f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestApplyManualBonusStagesTodayCredit(t *testing.T) {
	t.Parallel()

	now := localMs(2026, time.March, 10, 12, 0, 0)
	f := newFixture(t, "uid-1", now)
	ctx := context.Background()

	// A bonus keyed to a past day still lands in the today bucket.
	require.NoError(t, f.reconciler.ApplyManualBonus(ctx, 1_200_000, "2026-01-01"))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(1_200_000), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(1_200_000), docstore.Int64Field(fields, "today_visible_millis", 0))
	assert.Equal(t, localMs(2026, time.March, 10, 0, 0, 0), docstore.Int64Field(fields, "today_day_start_epoch_ms", 0))
	assert.Equal(t, []string{"2026-01-01"}, docstore.StringListField(fields, "study_day_keys"))
	assert.Equal(t, []string{"2026-01-01"}, docstore.StringListField(fields, "streak_day_keys"))
}

func TestApplyManualBonusBlankKeyIsNoop(t *testing.T) {
	t.Parallel()

	now := localMs(2026, time.March, 10, 12, 0, 0)
	f := newFixture(t, "uid-1", now)
	ctx := context.Background()

	require.NoError(t, f.reconciler.ApplyManualBonus(ctx, 60000, " "))

	_, ok, err := f.docs.Get(ctx, docstore.StudyTimeDoc("uid-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordIntervalSignedOutIsNoop(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "", start+10*60000)
	ctx := context.Background()

	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	_, pending, err := f.reconciler.readPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestRecordAppEntryMarksStreakDayOnly(t *testing.T) {
	t.Parallel()

	now := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-1", now)
	ctx := context.Background()

	require.NoError(t, f.reconciler.RecordAppEntry(ctx, now))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, []string{"2026-03-10"}, docstore.StringListField(fields, "streak_day_keys"))
	assert.Empty(t, docstore.StringListField(fields, "study_day_keys"))
	assert.Equal(t, int64(0), docstore.Int64Field(fields, "total_visible_millis", 0))
}

func TestApplyTimeBonusWritesDirectly(t *testing.T) {
	t.Parallel()

	now := localMs(2026, time.March, 10, 12, 0, 0)
	f := newFixture(t, "uid-1", now)
	ctx := context.Background()

	require.NoError(t, f.reconciler.ApplyTimeBonus(ctx, 5*60000))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(5*60000), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(5*60000), docstore.Int64Field(fields, "today_visible_millis", 0))

	// Time only; the bonus marks no day.
	assert.Empty(t, docstore.StringListField(fields, "study_day_keys"))
	assert.Empty(t, docstore.StringListField(fields, "streak_day_keys"))

	// A direct bonus failure surfaces instead of being staged.
	f.docs.failing = true
	err := f.reconciler.ApplyTimeBonus(ctx, 60000)
	require.Error(t, err)
}

func TestFlushAccumulatesAcrossDevicesOrderIndependently(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-1", start+30*60000)
	ctx := context.Background()

	// Another device already flushed 20 minutes today.
	require.NoError(t, f.docs.Set(ctx, docstore.StudyTimeDoc("uid-1"), docstore.Fields{
		"total_visible_millis":     int64(20 * 60000),
		"today_visible_millis":     int64(20 * 60000),
		"today_day_start_epoch_ms": localMs(2026, time.March, 10, 0, 0, 0),
		"study_day_keys":           []string{"2026-03-10"},
	}, false))

	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(30*60000), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(30*60000), docstore.Int64Field(fields, "today_visible_millis", 0))
	assert.Equal(t, []string{"2026-03-10"}, docstore.StringListField(fields, "study_day_keys"))
}

func TestFetchSnapshotRollsStaleToday(t *testing.T) {
	t.Parallel()

	now := localMs(2026, time.March, 11, 8, 0, 0)
	f := newFixture(t, "uid-1", now)
	ctx := context.Background()

	require.NoError(t, f.docs.Set(ctx, docstore.StudyTimeDoc("uid-1"), docstore.Fields{
		"total_visible_millis":     int64(90 * 60000),
		"today_visible_millis":     int64(15 * 60000),
		"today_day_start_epoch_ms": localMs(2026, time.March, 10, 0, 0, 0),
		"study_day_keys":           []string{"2026-03-09", "2026-03-10"},
		"streak_day_keys":          []string{"2026-03-10"},
	}, false))

	snapshot, err := f.reconciler.FetchSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90*60000), snapshot.TotalVisibleMillis)
	assert.Equal(t, int64(0), snapshot.TodayVisibleMillis)
	assert.Equal(t, localMs(2026, time.March, 11, 0, 0, 0), snapshot.TodayDayStartEpochMs)
	assert.Equal(t, 2, snapshot.TotalStudyDays)
	assert.Equal(t, 1, snapshot.TotalStreakDays)
}

func TestResetMetrics(t *testing.T) {
	t.Parallel()

	start := localMs(2026, time.March, 10, 9, 0, 0)
	f := newFixture(t, "uid-1", start+10*60000)
	ctx := context.Background()

	require.NoError(t, f.reconciler.RecordInterval(ctx, start, start+10*60000))
	require.NoError(t, f.reconciler.ResetMetrics(ctx))

	fields := f.remoteSnapshot(t, "uid-1")
	assert.Equal(t, int64(0), docstore.Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(0), docstore.Int64Field(fields, "total_study_days", 0))
	assert.Empty(t, docstore.StringListField(fields, "study_day_keys"))
}
