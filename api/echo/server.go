package echo

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.pilab.hu/fence/api"
	"go.pilab.hu/fence/log"
	"go.pilab.hu/fence/middleware"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// ServerOptions configure NewEcho.
type ServerOptions struct {
	// ApplicationRoot prefixes every OAuth2 route, e.g. "/user".
	ApplicationRoot string
	Logger          log.Logger

	// RateLimiter guards the token endpoint when set.
	RateLimiter   *middleware.RateLimiter
	OnRateLimited func()

	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer

	HealthChecks map[string]HealthCheck
}

// NewEcho builds the echo instance serving the OAuth2 API, health and metrics.
func NewEcho(oa *OAuth2API, opts ServerOptions) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.Tracing())
	e.Use(middleware.RequestLogger(logger))

	var tokenMiddleware []echo.MiddlewareFunc
	if opts.RateLimiter != nil {
		tokenMiddleware = append(tokenMiddleware,
			middleware.RateLimit(opts.RateLimiter, middleware.ClientKey, opts.OnRateLimited))
	}
	oa.RegisterRoutes(e.Group(opts.ApplicationRoot), tokenMiddleware...)

	e.GET("/healthz", healthHandler(opts.HealthChecks))
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func healthHandler(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		status := api.HealthStatus{Status: "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if status.Checks == nil {
				status.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				status.Status = "unavailable"
				status.Checks[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}

		return c.JSON(code, status)
	}
}
