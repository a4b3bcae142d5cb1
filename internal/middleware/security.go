package middleware

import (
	"net/textproto"
	"strings"

	"github.com/labstack/echo/v4"

	"model-proxy-go/internal/service"
)

// StripHopByHop returns an Echo middleware that removes connection-scoped
// headers from the inbound request, including any header the client named
// in its Connection header.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header

			for _, v := range h.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					if name = textproto.TrimString(name); name != "" {
						h.Del(name)
					}
				}
			}
			for _, name := range service.HopByHopHeaders {
				h.Del(name)
			}

			return next(c)
		}
	}
}
