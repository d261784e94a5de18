package echoapi

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/smis/core/baas"
	"github.com/trezcool/smis/core/user"
)

const (
	headerAPIKey       = "apikey"
	headerPrefer       = "Prefer"
	headerRange        = "Range"
	headerRangeUnit    = "Range-Unit"
	headerContentRange = "Content-Range"
	headerUpsert       = "x-upsert"

	contextClaimsKey = "claims"
	contextUserKey   = "user"
)

// apikeyMiddleware only lets through requests carrying the project key. Any key is accepted when anonKey is empty.
func apikeyMiddleware(anonKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.Request().Header.Get(headerAPIKey)
			if key == "" {
				key = ctx.QueryParam(headerAPIKey)
			}
			if key == "" {
				return errNoAPIKey
			}
			if anonKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(anonKey)) != 1 {
				return errInvalidAPIKey
			}
			return next(ctx)
		}
	}
}

func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// bearerMiddleware authenticates the session token and stores its claims & user in the context.
// The anon key is not a session.
func bearerMiddleware(svc *baas.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := bearerToken(ctx)
			if token == "" || token == ctx.Request().Header.Get(headerAPIKey) {
				return errNoAuthorization
			}
			claims, usr, err := svc.Authenticate(ctx.Request().Context(), token)
			if err != nil {
				return err
			}
			ctx.Set(contextClaimsKey, claims)
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (*baas.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*baas.Claims); ok {
		return claims, nil
	}
	return nil, errNoAuthorization
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errNoAuthorization
}

// newMetricsMiddleware counts and times requests per route.
func newMetricsMiddleware(reg prometheus.Registerer) echo.MiddlewareFunc {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smis",
		Subsystem: "emulator",
		Name:      "http_requests_total",
		Help:      "Number of HTTP requests served, by route and status code.",
	}, []string{"method", "route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smis",
		Subsystem: "emulator",
		Name:      "http_request_duration_seconds",
		Help:      "Time spent serving HTTP requests, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(requests, duration)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			status := ctx.Response().Status
			if err != nil {
				if bErr, _ := toBackendError(err); bErr != nil {
					status = bErr.Status
				}
			}
			requests.WithLabelValues(ctx.Request().Method, route, strconv.Itoa(status)).Inc()
			duration.WithLabelValues(ctx.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
