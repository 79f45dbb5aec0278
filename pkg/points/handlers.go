package points

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/studykeep/studykeep/pkg/daykey"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/errcodes"
	"github.com/studykeep/studykeep/pkg/identity"
	"github.com/studykeep/studykeep/pkg/retention"
)

// CloudReconciler is the remote side of the point ledger.
type CloudReconciler interface {
	FlushPending(ctx context.Context) error
	FetchTotalPoints(ctx context.Context) (int64, error)
	ResetTotalPoints(ctx context.Context) error
}

// Notifier requests an async flush after a mutating call.
type Notifier interface {
	NotifyPoints()
}

type handler struct {
	ledger     *Ledger
	reconciler CloudReconciler
	notifier   Notifier
	identity   identity.Provider
	docs       docstore.Store
	clock      daykey.Clock
	loc        *time.Location
}

func (h *handler) award(c echo.Context) error {
	ctx := c.Request().Context()

	params := AwardSessionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	spec := AwardSpec{
		ModeID:           normalizeModeID(params.ModeID),
		Difficulty:       NormalizeDifficulty(params.Difficulty).String(),
		Points:           params.Points,
		AwardedAtEpochMs: params.AwardedAtEpochMs,
	}
	if spec.Points <= 0 {
		spec.Points = NormalizeDifficulty(params.Difficulty).BasePoints()
	}
	if spec.AwardedAtEpochMs <= 0 {
		spec.AwardedAtEpochMs = h.clock.Now().UnixMilli()
	}

	awarded, err := h.ledger.AwardSessionIfNeeded(ctx, params.SessionID, spec)
	if err != nil {
		return err
	}
	if awarded {
		h.notifier.NotifyPoints()
	}

	total, err := h.ledger.TotalPoints(ctx)
	if err != nil {
		return err
	}

	resp := struct {
		Awarded     bool  `json:"awarded"`
		Points      int64 `json:"points"`
		TotalPoints int64 `json:"total_points"`
	}{awarded, spec.Points, total}

	return c.JSON(http.StatusOK, resp)
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	total, err := h.ledger.TotalPoints(ctx)
	if err != nil {
		return err
	}
	pending, err := h.ledger.PendingAwards(ctx)
	if err != nil {
		return err
	}

	resp := struct {
		TotalPoints   int64 `json:"total_points"`
		PendingAwards int   `json:"pending_awards"`
	}{total, len(pending)}

	return c.JSON(http.StatusOK, resp)
}

func (h *handler) flush(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.reconciler.FlushPending(ctx); err != nil {
		return errcodes.SyncFailed("points flush")
	}

	total, err := h.reconciler.FetchTotalPoints(ctx)
	if err != nil {
		return err
	}

	resp := struct {
		TotalPoints int64 `json:"total_points"`
	}{total}

	return c.JSON(http.StatusOK, resp)
}

func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.reconciler.ResetTotalPoints(ctx); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// applyRetention prunes remote session markers older than the preset's
// cutoff and forgets the matching sessions locally. A forgotten session can
// be credited again if replayed, mirroring the remote markers' absence.
func (h *handler) applyRetention(c echo.Context) error {
	ctx := c.Request().Context()

	params := RetentionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	preset, ok := retention.ParsePreset(params.Preset)
	if !ok {
		return errcodes.ValidationError("Unknown retention preset.")
	}

	uid, err := h.identity.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return errcodes.NoSignedInAccount()
	}

	nowMs := h.clock.Now().UnixMilli()
	paths, err := h.docs.List(ctx, docstore.SessionsPrefix(uid))
	if err != nil {
		return err
	}

	pruned := map[string]struct{}{}
	for _, path := range paths {
		fields, ok, err := h.docs.Get(ctx, path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		awardedAt := docstore.Int64Field(fields, "awarded_at_epoch_ms", 0)
		if !retention.ShouldDelete(preset, awardedAt, nowMs, h.loc) {
			continue
		}
		if err := h.docs.Delete(ctx, path); err != nil {
			return err
		}
		pruned[sessionIDFromPath(path)] = struct{}{}
	}

	if err := h.ledger.ForgetAwardedSessions(ctx, pruned); err != nil {
		return err
	}

	resp := struct {
		PrunedSessions int `json:"pruned_sessions"`
	}{len(pruned)}

	return c.JSON(http.StatusOK, resp)
}
