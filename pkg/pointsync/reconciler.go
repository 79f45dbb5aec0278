package pointsync

import (
	"context"
	"math"
	"sync"

	"github.com/studykeep/studykeep/pkg/daykey"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/identity"
	"github.com/studykeep/studykeep/pkg/points"
)

const (
	fieldTotalPoints      = "total_points"
	fieldUpdatedAtEpochMs = "updated_at_epoch_ms"
	fieldModeID           = "mode_id"
	fieldDifficulty       = "difficulty"
	fieldPoints           = "points"
	fieldAwardedAtEpochMs = "awarded_at_epoch_ms"
)

// Reconciler pushes the local pending award queue into the account's
// document tree and folds the remote total back into the local ledger.
// Flushes serialize on one mutex so two concurrent triggers cannot
// interleave their transactions.
type Reconciler struct {
	mu       sync.Mutex
	identity identity.Provider
	docs     docstore.Store
	ledger   *points.Ledger
	clock    daykey.Clock
}

func NewReconciler(provider identity.Provider, docs docstore.Store, ledger *points.Ledger, clock daykey.Clock) *Reconciler {
	if clock == nil {
		clock = daykey.SystemClock()
	}
	return &Reconciler{
		identity: provider,
		docs:     docs,
		ledger:   ledger,
		clock:    clock,
	}
}

// flushOutcome is what one flush transaction decided: which queued sessions
// the remote store newly credited, and the remote total after the flush.
type flushOutcome struct {
	creditedIDs map[string]struct{}
	remoteTotal int64
}

// FlushPending pushes queued awards to the account's document tree. Signed
// out or an empty queue is a successful no-op. Each award lands as a
// session subdocument; a subdocument that already exists means some earlier
// flush (possibly from another device) already credited the session, so it
// only drains locally. The parent total moves in the same transaction as
// the subdocuments, so a crash can never count an award twice.
func (r *Reconciler) FlushPending(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	pending, err := r.ledger.PendingAwards(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	var outcome flushOutcome
	err = r.docs.RunInTx(ctx, func(ctx context.Context, tx docstore.Tx) error {
		parent, _, err := tx.Get(ctx, docstore.PointsDoc(uid))
		if err != nil {
			return err
		}
		remoteTotal := docstore.Int64Field(parent, fieldTotalPoints, 0)

		credited := map[string]struct{}{}
		accumulated := int64(0)
		for _, award := range pending {
			if _, seen := credited[award.SessionID]; seen {
				continue
			}
			_, exists, err := tx.Get(ctx, docstore.SessionDoc(uid, award.SessionID))
			if err != nil {
				return err
			}
			if exists {
				// Already credited remotely; drain without recounting.
				credited[award.SessionID] = struct{}{}
				continue
			}

			err = tx.Set(ctx, docstore.SessionDoc(uid, award.SessionID), docstore.Fields{
				fieldModeID:           award.ModeID,
				fieldDifficulty:       award.Difficulty,
				fieldPoints:           award.Points,
				fieldAwardedAtEpochMs: award.AwardedAtEpochMs,
			}, false)
			if err != nil {
				return err
			}
			credited[award.SessionID] = struct{}{}
			accumulated = saturatingAdd(accumulated, award.Points)
		}

		if accumulated > 0 {
			remoteTotal = saturatingAdd(remoteTotal, accumulated)
			err = tx.Set(ctx, docstore.PointsDoc(uid), docstore.Fields{
				fieldTotalPoints:      remoteTotal,
				fieldUpdatedAtEpochMs: r.clock.Now().UnixMilli(),
			}, true)
			if err != nil {
				return err
			}
		}

		outcome = flushOutcome{creditedIDs: credited, remoteTotal: remoteTotal}
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.ledger.RemovePendingAwards(ctx, outcome.creditedIDs); err != nil {
		return err
	}
	_, err = r.ledger.MergeCloudTotalPoints(ctx, outcome.remoteTotal)
	return err
}

// FetchTotalPoints reads the remote total and merges it into the local
// ledger, returning the merged value. Signed out returns the local total.
func (r *Reconciler) FetchTotalPoints(ctx context.Context) (int64, error) {
	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return 0, err
	}
	if uid == "" {
		return r.ledger.TotalPoints(ctx)
	}

	fields, ok, err := r.docs.Get(ctx, docstore.PointsDoc(uid))
	if err != nil {
		return 0, err
	}
	if !ok {
		return r.ledger.TotalPoints(ctx)
	}
	return r.ledger.MergeCloudTotalPoints(ctx, docstore.Int64Field(fields, fieldTotalPoints, 0))
}

// ResetTotalPoints zeroes the remote total for the signed-in account and
// wipes the local ledger. Session subdocuments stay so replayed sessions
// are still recognized as credited.
func (r *Reconciler) ResetTotalPoints(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uid, err := r.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid != "" {
		err = r.docs.Set(ctx, docstore.PointsDoc(uid), docstore.Fields{
			fieldTotalPoints:      int64(0),
			fieldUpdatedAtEpochMs: r.clock.Now().UnixMilli(),
		}, true)
		if err != nil {
			return err
		}
	}
	return r.ledger.ResetAllPoints(ctx)
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
