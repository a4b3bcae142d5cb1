package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"

	"model-proxy-go/internal/config"
	"model-proxy-go/internal/metrics"
	"model-proxy-go/internal/model"
	"model-proxy-go/internal/service"
)

// secretQueryPattern matches credential query parameters in URLs embedded in error messages.
var secretQueryPattern = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"]+`)

// streamBufferSize is the chunk size used when relaying upstream bodies.
const streamBufferSize = 32 * 1024

// ProxyHandler routes every inbound request: CORS preflight, landing page,
// or forwarding to the upstream named in the path.
type ProxyHandler struct {
	service *service.ProxyService
	profile config.Profile
	landing []byte
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, m *metrics.Metrics, logger *slog.Logger) (*ProxyHandler, error) {
	p := svc.Profile()
	landing, err := renderLanding(p)
	if err != nil {
		return nil, err
	}
	return &ProxyHandler{
		service: svc,
		profile: p,
		landing: landing,
		metrics: m,
		logger:  logger.With("component", "proxy_handler"),
	}, nil
}

// Handle classifies the request and serves it.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if req.Method == http.MethodOptions {
		return h.preflight(c)
	}

	path := service.StripMountPrefix(req.URL.EscapedPath(), h.profile.MountPrefix)
	if path == "/" || path == "/index.html" {
		return c.Blob(http.StatusOK, h.profile.Landing.ContentType, h.landing)
	}

	return h.forward(c, path)
}

// ExtensionMethods is an Echo middleware that hands requests whose method the
// router does not know (QUERY, MKCOL, ...) to Handle instead of answering 405.
func (h *ProxyHandler) ExtensionMethods(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if !errors.Is(err, echo.ErrMethodNotAllowed) || c.Response().Committed {
			return err
		}
		c.Response().Header().Del(echo.HeaderAllow)
		return h.Handle(c)
	}
}

func (h *ProxyHandler) preflight(c echo.Context) error {
	header, _ := service.PreflightHeaders(h.profile, c.Request().Header)
	for key, vals := range header {
		c.Response().Header()[key] = vals
	}
	return c.NoContent(http.StatusOK)
}

func (h *ProxyHandler) forward(c echo.Context, path string) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          path,
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          (&url.URL{Host: req.Host}).Hostname(),
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		c.Response().Header()[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Once the status is written a failed copy can only truncate the
	// response; the error is logged and the client sees a short body.
	if err := streamBody(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", sanitizeURL(path),
		)
	}

	return nil
}

// streamBody relays body to the client chunk by chunk, flushing after each
// write so server-sent events reach the caller as they arrive.
func streamBody(res *echo.Response, body io.Reader) error {
	rc := http.NewResponseController(res.Writer)
	buf := make([]byte, streamBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := res.Write(buf[:n]); werr != nil {
				return werr
			}
			_ = rc.Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// mapError converts a forwarding failure into the JSON 500 response. It is
// the only place failures are logged.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var pf *service.ProxyFailure
	if !errors.As(err, &pf) {
		pf = &service.ProxyFailure{Err: err, Time: time.Now()}
	}
	reason := pf.Reason()

	h.logger.Error("proxy error",
		"err", sanitizeError(pf.Err),
		"reason", reason,
		"target", sanitizeURL(pf.Target),
		"method", c.Request().Method,
	)
	if h.metrics != nil {
		h.metrics.UpstreamFailures.WithLabelValues(reason).Inc()
	}

	body, merr := json.Marshal(service.NewErrorBody(pf, h.profile.ErrorTimestamp))
	if merr != nil {
		return merr
	}

	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
	return c.Blob(http.StatusInternalServerError, echo.MIMEApplicationJSON, body)
}

// sanitizeError redacts credentials from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return sanitizeURL(err.Error())
}

func sanitizeURL(s string) string {
	return secretQueryPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
