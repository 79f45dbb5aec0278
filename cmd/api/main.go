package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/studykeep/studykeep/pkg/config"
	"github.com/studykeep/studykeep/pkg/database"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/identity"
	"github.com/studykeep/studykeep/pkg/migrations"
	"github.com/studykeep/studykeep/pkg/points"
	"github.com/studykeep/studykeep/pkg/pointsync"
	"github.com/studykeep/studykeep/pkg/server"
	"github.com/studykeep/studykeep/pkg/studysync"
	"github.com/studykeep/studykeep/pkg/studytime"
	"github.com/studykeep/studykeep/pkg/version"
	"github.com/studykeep/studykeep/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting studykeep", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	docs := docstore.NewSQLStore(db)
	identityService := identity.NewService(db, cfg.JWTSecret)
	pointLedger := points.NewLedger(db)
	pointSync := pointsync.NewReconciler(identityService, docs, pointLedger, nil)
	studyLedger := studytime.NewLedger(db, nil, cfg.DayTimeZone)
	studySync := studysync.NewReconciler(db, identityService, docs, nil, cfg.DayTimeZone)

	wrkr := worker.New(cfg, pointSync, studySync)

	srv, err := server.New(cfg, &server.Services{
		Identity:    identityService,
		Docs:        docs,
		PointLedger: pointLedger,
		PointSync:   pointSync,
		StudyLedger: studyLedger,
		StudySync:   studySync,
	}, wrkr)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
