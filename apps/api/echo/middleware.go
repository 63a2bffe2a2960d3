package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
)

const (
	csrfHeader     = "X-CSRF-Token"
	csrfContextKey = "csrf"
	csrfCookieName = "_csrf"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets teachers and admins through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin || claims.IsTeacher {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// newCSRFMiddleware issues a token cookie on safe requests and checks the
// X-CSRF-Token header against it on the others.
func newCSRFMiddleware(conf *core.Config) echo.MiddlewareFunc {
	csrf := middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + csrfHeader,
		ContextKey:     csrfContextKey,
		CookieName:     csrfCookieName,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   !(conf.Debug || conf.TestMode),
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		protected := csrf(next)
		return func(ctx echo.Context) error {
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			default:
				if ctx.Request().Header.Get(csrfHeader) == "" {
					return errCSRFMissing
				}
			}
			return protected(ctx)
		}
	}
}

func csrfToken(ctx echo.Context) error {
	token, _ := ctx.Get(csrfContextKey).(string)
	return ctx.JSON(http.StatusOK, CSRFResponse{CSRF: token})
}

type CSRFResponse struct {
	CSRF string `json:"csrf"`
}
