package points

import (
	"path"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/studykeep/studykeep/pkg/daykey"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/identity"
)

// RegisterRoutes registers all point routes.
func RegisterRoutes(e *echo.Echo, ledger *Ledger, reconciler CloudReconciler, notifier Notifier, provider identity.Provider, docs docstore.Store, loc *time.Location) {
	h := &handler{
		ledger:     ledger,
		reconciler: reconciler,
		notifier:   notifier,
		identity:   provider,
		docs:       docs,
		clock:      daykey.SystemClock(),
		loc:        loc,
	}

	g := e.Group("/points")
	g.GET("", h.retrieve)
	g.POST("/awards", h.award)
	g.POST("/flush", h.flush)
	g.POST("/reset", h.reset)

	e.POST("/maintenance/retention", h.applyRetention)
}

func sessionIDFromPath(docPath string) string {
	return path.Base(docPath)
}
