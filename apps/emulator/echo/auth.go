package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/backend"
)

type (
	authApi struct {
		svc *baas.AuthService
	}

	passwordGrant struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	recoverRequest struct {
		Email string `json:"email"`
	}

	verifyRequest struct {
		Type  string `json:"type"`
		Email string `json:"email"`
		Token string `json:"token"`
	}
)

func registerAuthAPI(g *echo.Group, bearer echo.MiddlewareFunc, svc *baas.AuthService) {
	api := authApi{svc: svc}

	g.POST("/signup", api.signUp)
	g.POST("/token", api.token)
	g.POST("/recover", api.recover)
	g.POST("/verify", api.verify)
	g.POST("/logout", api.logout, bearer)
	g.GET("/user", api.getUser, bearer)
	g.PUT("/user", api.updateUser, bearer)
}

func bind(ctx echo.Context, i interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(ctx, i); err != nil {
		return backend.NewError(http.StatusBadRequest, backend.CodeValidationFailed, "Could not read the request body")
	}
	return nil
}

func (api authApi) signUp(ctx echo.Context) error {
	var data backend.SignUpJSON
	if err := bind(ctx, &data); err != nil {
		return err
	}
	usr, err := api.svc.SignUp(ctx.Request().Context(), data.NewUser())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, backend.NewUserJSON(usr))
}

func (api authApi) token(ctx echo.Context) error {
	if ctx.QueryParam("grant_type") != "password" {
		return errUnsupportedGrant
	}
	var data passwordGrant
	if err := bind(ctx, &data); err != nil {
		return err
	}
	sess, err := api.svc.SignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, backend.NewSessionJSON(*sess))
}

func (api authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SignOut(ctx.Request().Context(), claims); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api authApi) getUser(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, backend.NewUserJSON(usr))
}

func (api authApi) updateUser(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data backend.UserAttributesJSON
	if err = bind(ctx, &data); err != nil {
		return err
	}
	usr, err = api.svc.UpdateUser(ctx.Request().Context(), usr.ID, data.Attributes())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, backend.NewUserJSON(usr))
}

func (api authApi) recover(ctx echo.Context) error {
	var data recoverRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.svc.Recover(ctx.Request().Context(), data.Email); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{})
}

func (api authApi) verify(ctx echo.Context) error {
	var data verifyRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	sess, err := api.svc.Verify(ctx.Request().Context(), data.Type, data.Email, data.Token)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, backend.NewSessionJSON(*sess))
}
