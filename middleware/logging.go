// Package middleware holds the echo middleware shared by the HTTP API.
package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.pilab.hu/fence/log"
)

// RequestLogger logs every request through logger once the handler returns.
func RequestLogger(logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
			}
			if err != nil {
				logger.Error(req.Context(), "HTTP Request", err, fields)
			} else {
				logger.Info(req.Context(), "HTTP Request", fields)
			}

			return nil
		}
	}
}
