package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/user"
)

var (
	errNoAPIKey         = backend.NewError(http.StatusUnauthorized, backend.CodeNoAuthorization, "No API key found in request")
	errInvalidAPIKey    = backend.NewError(http.StatusUnauthorized, backend.CodeNoAuthorization, "Invalid API key")
	errNoAuthorization  = backend.NewError(http.StatusUnauthorized, backend.CodeNoAuthorization, "This endpoint requires a Bearer token")
	errInvalidBody      = backend.NewError(http.StatusBadRequest, "PGRST102", "Empty or invalid json")
	errNoRows           = backend.NewError(http.StatusNotAcceptable, backend.CodeNoRows, "JSON object requested, multiple (or no) rows returned")
	errUnsupportedGrant = backend.NewError(http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type")
)

// toBackendError maps err to the error reported to the client. ok is false for server errors.
func toBackendError(err error) (bErr *backend.Error, ok bool) {
	if errors.As(err, &bErr) {
		return bErr, true
	}

	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return backend.NewError(http.StatusUnprocessableEntity, backend.CodeValidationFailed, vErr.Error()), true
	}

	var hErr *echo.HTTPError
	if errors.As(err, &hErr) {
		if hErr.Internal != nil {
			if herr, ok := hErr.Internal.(*echo.HTTPError); ok {
				hErr = herr
			}
		}
		msg, isStr := hErr.Message.(string)
		if !isStr {
			msg = fmt.Sprint(hErr.Message)
		}
		return backend.NewError(hErr.Code, "", msg), hErr.Code < http.StatusInternalServerError
	}
	return backend.NewError(http.StatusInternalServerError, "unexpected_failure", http.StatusText(http.StatusInternalServerError)), false
}

// errorBody renders bErr the way the API serving path does.
func errorBody(path string, bErr *backend.Error) interface{} {
	switch {
	case strings.HasPrefix(path, "/auth/"):
		return backend.NewAuthErrorJSON(bErr)
	case strings.HasPrefix(path, "/storage/"):
		return backend.NewStorageErrorJSON(bErr)
	default:
		return backend.NewRestErrorJSON(bErr)
	}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		bErr, ok := toBackendError(err)
		if !ok { // any other error is a server error
			msg := http.StatusText(bErr.Status)
			args := []interface{}{errors.Wrap(err, msg)}
			if usr, found := ctx.Get(contextUserKey).(user.User); found {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			if ctx.Echo().Debug {
				bErr = backend.NewError(bErr.Status, bErr.Code, err.Error())
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(bErr.Status)
			} else {
				err = ctx.JSON(bErr.Status, errorBody(ctx.Request().URL.Path, bErr))
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
