package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/studykeep/studykeep/pkg/binder"
	"github.com/studykeep/studykeep/pkg/config"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/errcodes"
	"github.com/studykeep/studykeep/pkg/identity"
	"github.com/studykeep/studykeep/pkg/points"
	"github.com/studykeep/studykeep/pkg/pointsync"
	"github.com/studykeep/studykeep/pkg/studysync"
	"github.com/studykeep/studykeep/pkg/studytime"
	"github.com/studykeep/studykeep/pkg/worker"
)

// Services holds the shared service instances the routes are wired with.
// They are constructed once in main so the worker flushes through the same
// reconcilers (and the same flush mutexes) the handlers use.
type Services struct {
	Identity    *identity.Service
	Docs        docstore.Store
	PointLedger *points.Ledger
	PointSync   *pointsync.Reconciler
	StudyLedger *studytime.Ledger
	StudySync   *studysync.Reconciler
}

func New(cfg *config.Config, svcs *Services, wrkr *worker.Worker) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	identity.RegisterRoutes(e, svcs.Identity, svcs.Docs)
	points.RegisterRoutes(e, svcs.PointLedger, svcs.PointSync, wrkr, svcs.Identity, svcs.Docs, cfg.DayTimeZone)
	studytime.RegisterRoutes(e, svcs.StudyLedger, svcs.StudySync, wrkr)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
