package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/event"
	"github.com/jazzedge/academy/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errCSRFMissing          = echo.NewHTTPError(http.StatusForbidden, "missing csrf token")
	errInvalidID            = echo.NewHTTPError(http.StatusBadRequest, "invalid id")
)

// domainErrors maps the sentinel errors of the core packages to HTTP status codes.
var domainErrors = []struct {
	err  error
	code int
}{
	{user.ErrNotFound, http.StatusNotFound},

	{curriculum.ErrUnitNotFound, http.StatusNotFound},
	{curriculum.ErrStepNotFound, http.StatusNotFound},
	{curriculum.ErrSubmissionNotFound, http.StatusNotFound},
	{curriculum.ErrUnitLocked, http.StatusForbidden},
	{curriculum.ErrNotStaff, http.StatusForbidden},
	{curriculum.ErrStepNotInUnit, http.StatusBadRequest},
	{curriculum.ErrStepsIncomplete, http.StatusConflict},
	{curriculum.ErrMilestonePending, http.StatusConflict},
	{curriculum.ErrMilestonePassed, http.StatusConflict},
	{curriculum.ErrAlreadyGraded, http.StatusConflict},
	{curriculum.ErrAssignmentExists, http.StatusConflict},

	{event.ErrNotFound, http.StatusNotFound},
}

// domainErrorCode returns the status code of a domain sentinel error.
func domainErrorCode(cause error) (int, bool) {
	for _, de := range domainErrors {
		if cause == de.err {
			return de.code, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := domainErrorCode(cause); ok {
			code = c
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if fldErrs := origErr.FieldMap(); fldErrs != nil {
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID, _ = claims.UserID()
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
