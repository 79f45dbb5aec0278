package identity

import (
	"github.com/labstack/echo/v4"
	"github.com/studykeep/studykeep/pkg/docstore"
)

// RegisterRoutes registers all identity routes. The service is injected so
// the reconcilers resolve the active account through the same instance.
func RegisterRoutes(e *echo.Echo, identityService *Service, docs docstore.Store) {
	h := &handler{
		identityService: identityService,
		docs:            docs,
	}

	g := e.Group("/identity")
	g.GET("", h.retrieve)
	g.POST("/signin", h.signIn)
	g.POST("/signout", h.signOut)
	g.DELETE("/account-data", h.deleteAccountData)
}
