package studytime

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/studykeep/studykeep/pkg/errcodes"
)

// Notifier requests an async flush after a mutating call.
type Notifier interface {
	NotifyStudyTime()
}

type handler struct {
	ledger     *Ledger
	reconciler CloudReconciler
	notifier   Notifier
}

type snapshotResponse struct {
	TotalVisibleMillis int64 `json:"total_visible_millis"`
	TodayVisibleMillis int64 `json:"today_visible_millis"`
	TodayStudyMinutes  int64 `json:"today_study_minutes"`
	TotalStudyDays     int   `json:"total_study_days"`
	TotalStreakDays    int   `json:"total_streak_days"`
}

func (h *handler) recordInterval(c echo.Context) error {
	ctx := c.Request().Context()

	params := RecordIntervalPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.ledger.RecordVisibleInterval(ctx, params.StartEpochMs, params.EndEpochMs); err != nil {
		return err
	}
	// The reconciler recomputes the interval split on its own copy so cloud
	// state stays correct even if the local ledger is reset between calls.
	if err := h.reconciler.RecordInterval(ctx, params.StartEpochMs, params.EndEpochMs); err != nil {
		logger.FromEchoContext(c).Err(err).Error("record interval cloud staging failed")
	}
	h.notifier.NotifyStudyTime()

	return h.respondWithSnapshot(c)
}

func (h *handler) recordEntry(c echo.Context) error {
	ctx := c.Request().Context()

	params := RecordEntryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.ledger.RecordAppEntry(ctx, params.EpochMs); err != nil {
		return err
	}
	if err := h.reconciler.RecordAppEntry(ctx, params.EpochMs); err != nil {
		logger.FromEchoContext(c).Err(err).Error("record entry cloud staging failed")
	}
	h.notifier.NotifyStudyTime()

	return h.respondWithSnapshot(c)
}

func (h *handler) timeBonus(c echo.Context) error {
	ctx := c.Request().Context()

	params := TimeBonusPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.ledger.ApplyTimeBonus(ctx, params.BonusMillis); err != nil {
		return err
	}
	if err := h.reconciler.ApplyTimeBonus(ctx, params.BonusMillis); err != nil {
		return errcodes.SyncFailed("time bonus")
	}

	return h.respondWithSnapshot(c)
}

func (h *handler) manualBonus(c echo.Context) error {
	ctx := c.Request().Context()

	params := ManualBonusPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.ledger.ApplyManualBonus(ctx, params.BonusMillis, params.DayKey); err != nil {
		return err
	}
	if err := h.reconciler.ApplyManualBonus(ctx, params.BonusMillis, params.DayKey); err != nil {
		logger.FromEchoContext(c).Err(err).Error("manual bonus cloud staging failed")
	}
	h.notifier.NotifyStudyTime()

	return h.respondWithSnapshot(c)
}

func (h *handler) retrieve(c echo.Context) error {
	return h.respondWithSnapshot(c)
}

func (h *handler) retrieveCloud(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, err := h.reconciler.FetchSnapshot(ctx)
	if err != nil {
		return errcodes.SyncFailed("study time fetch")
	}

	return c.JSON(http.StatusOK, snapshotResponse{
		TotalVisibleMillis: snapshot.TotalVisibleMillis,
		TodayVisibleMillis: snapshot.TodayVisibleMillis,
		TodayStudyMinutes:  snapshot.TodayStudyMinutes(),
		TotalStudyDays:     snapshot.TotalStudyDays,
		TotalStreakDays:    snapshot.TotalStreakDays,
	})
}

func (h *handler) flush(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.reconciler.FlushPending(ctx); err != nil {
		return errcodes.SyncFailed("study time flush")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.ledger.ResetAllMetrics(ctx); err != nil {
		return err
	}
	if err := h.reconciler.ResetMetrics(ctx); err != nil {
		return errcodes.SyncFailed("study time reset")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) respondWithSnapshot(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, err := h.ledger.LocalSnapshot(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, snapshotResponse{
		TotalVisibleMillis: snapshot.TotalVisibleMillis,
		TodayVisibleMillis: snapshot.TodayVisibleMillis,
		TodayStudyMinutes:  snapshot.TodayStudyMinutes(),
		TotalStudyDays:     snapshot.TotalStudyDays(),
		TotalStreakDays:    snapshot.TotalStreakDays(),
	})
}
