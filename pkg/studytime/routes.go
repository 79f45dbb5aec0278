package studytime

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all study-time routes.
func RegisterRoutes(e *echo.Echo, ledger *Ledger, reconciler CloudReconciler, notifier Notifier) {
	h := &handler{
		ledger:     ledger,
		reconciler: reconciler,
		notifier:   notifier,
	}

	g := e.Group("/studytime")
	g.GET("", h.retrieve)
	g.GET("/cloud", h.retrieveCloud)
	g.POST("/intervals", h.recordInterval)
	g.POST("/entries", h.recordEntry)
	g.POST("/bonus", h.timeBonus)
	g.POST("/manual-bonus", h.manualBonus)
	g.POST("/flush", h.flush)
	g.POST("/reset", h.reset)
}
