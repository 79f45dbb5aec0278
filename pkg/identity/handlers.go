package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/studykeep/studykeep/pkg/docstore"
	"github.com/studykeep/studykeep/pkg/errcodes"
)

type handler struct {
	identityService *Service
	docs            docstore.Store
}

func (h *handler) signIn(c echo.Context) error {
	ctx := c.Request().Context()

	params := SignInPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	uid, err := h.identityService.SignIn(ctx, params.Token)
	if err != nil {
		return err
	}

	resp := struct {
		UID string `json:"uid"`
	}{uid}

	return c.JSON(http.StatusOK, resp)
}

func (h *handler) signOut(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.identityService.SignOut(ctx); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	uid, err := h.identityService.CurrentUID(ctx)
	if err != nil {
		return err
	}

	resp := struct {
		UID      string `json:"uid"`
		SignedIn bool   `json:"signed_in"`
	}{uid, uid != ""}

	return c.JSON(http.StatusOK, resp)
}

func (h *handler) deleteAccountData(c echo.Context) error {
	ctx := c.Request().Context()

	uid, err := h.identityService.CurrentUID(ctx)
	if err != nil {
		return err
	}
	if uid == "" {
		return errcodes.NoSignedInAccount()
	}

	if err := h.docs.DeleteTree(ctx, docstore.UserRoot(uid)); err != nil {
		return err
	}
	if err := h.identityService.SignOut(ctx); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
