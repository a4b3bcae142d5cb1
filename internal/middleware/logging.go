// Package middleware provides Echo middleware for request logging, metrics
// and inbound header hygiene.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"model-proxy-go/internal/metrics"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Only the route class is logged; the path carries the upstream host and may
// be long, so it is logged at debug level.
func RequestLogger(logger *slog.Logger, mountPrefix, metricsPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelWarn
			}

			logger.Log(req.Context(), level, "request",
				"method", req.Method,
				"route", metrics.NormalizePath(req.URL.Path, mountPrefix, metricsPath),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_in", req.ContentLength,
				"bytes_out", res.Size,
			)
			logger.Debug("request path", "path", req.URL.Path, "request_id", res.Header().Get(echo.HeaderXRequestID))

			return err
		}
	}
}
