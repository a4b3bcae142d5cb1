package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"model-proxy-go/internal/config"
	"model-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Operational routes live under "/_/", which is never a valid hostname
// segment, so every other path reaches the proxy router.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/_/healthz", health.Healthz)
	e.GET("/_/status", health.Status)

	e.Any("/", proxy.Handle)
	e.Any("/*", proxy.Handle)

	// Any only covers Echo's method table; other methods reach the proxy
	// through the router's 405 fallback.
	e.Use(proxy.ExtensionMethods)
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
