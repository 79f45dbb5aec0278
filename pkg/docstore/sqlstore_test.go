package docstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studykeep/studykeep/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return NewSQLStore(db)
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	path := PointsDoc("uid-1")
	err := store.Set(ctx, path, Fields{"total_points": int64(42), "mode_id": "reading"}, false)
	require.NoError(t, err)

	fields, ok, err := store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), Int64Field(fields, "total_points", 0))
	assert.Equal(t, "reading", StringField(fields, "mode_id", ""))
}

func TestGetMissingDocument(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, ok, err := store.Get(context.Background(), PointsDoc("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetMergePreservesOtherFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	path := StudyTimeDoc("uid-1")
	err := store.Set(ctx, path, Fields{"total_visible_millis": int64(1000), "today_visible_millis": int64(200)}, false)
	require.NoError(t, err)

	err = store.Set(ctx, path, Fields{"today_visible_millis": int64(500)}, true)
	require.NoError(t, err)

	fields, ok, err := store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(500), Int64Field(fields, "today_visible_millis", 0))
}

func TestSetWithoutMergeReplaces(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	path := StudyTimeDoc("uid-1")
	err := store.Set(ctx, path, Fields{"total_visible_millis": int64(1000)}, false)
	require.NoError(t, err)

	err = store.Set(ctx, path, Fields{"today_visible_millis": int64(500)}, false)
	require.NoError(t, err)

	fields, ok, err := store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), Int64Field(fields, "total_visible_millis", 0))
	assert.Equal(t, int64(500), Int64Field(fields, "today_visible_millis", 0))
}

func TestDeleteTreeRemovesSubtreeOnly(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, PointsDoc("uid-1"), Fields{"total_points": int64(10)}, false))
	require.NoError(t, store.Set(ctx, SessionDoc("uid-1", "s1"), Fields{"points": int64(10)}, false))
	require.NoError(t, store.Set(ctx, PointsDoc("uid-2"), Fields{"total_points": int64(99)}, false))

	err := store.DeleteTree(ctx, UserRoot("uid-1"))
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, PointsDoc("uid-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(ctx, SessionDoc("uid-1", "s1"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(ctx, PointsDoc("uid-2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, SessionDoc("uid-1", "b"), Fields{}, false))
	require.NoError(t, store.Set(ctx, SessionDoc("uid-1", "a"), Fields{}, false))
	require.NoError(t, store.Set(ctx, SessionDoc("uid-2", "c"), Fields{}, false))

	paths, err := store.List(ctx, SessionsPrefix("uid-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		SessionDoc("uid-1", "a"),
		SessionDoc("uid-1", "b"),
	}, paths)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Set(ctx, PointsDoc("uid-1"), Fields{"total_points": int64(10)}, false); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := store.Get(ctx, PointsDoc("uid-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunInTxReadsOwnWrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Set(ctx, PointsDoc("uid-1"), Fields{"total_points": int64(10)}, false); err != nil {
			return err
		}
		fields, ok, err := tx.Get(ctx, PointsDoc("uid-1"))
		if err != nil {
			return err
		}
		require.True(t, ok)
		assert.Equal(t, int64(10), Int64Field(fields, "total_points", 0))
		return nil
	})
	require.NoError(t, err)
}
