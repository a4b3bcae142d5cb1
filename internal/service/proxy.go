// Package service implements the core proxy forwarding logic: target
// resolution, header filtering, forwarding and response shaping.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"model-proxy-go/internal/client"
	"model-proxy-go/internal/config"
	"model-proxy-go/internal/model"
)

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client       *client.UpstreamClient
	profile      config.Profile
	allowedHosts map[string]bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewProxyService creates a ProxyService for the configured deployment profile.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:       c,
		profile:      cfg.Profile(),
		allowedHosts: cfg.AllowedHosts(),
		logger:       logger.With("component", "proxy_service"),
		now:          time.Now,
	}
}

// Profile returns the deployment profile the service was built with.
func (s *ProxyService) Profile() config.Profile {
	return s.profile
}

// Forward sends a ProxyRequest to the upstream encoded in its path and
// returns the shaped response. The caller is responsible for closing the
// response body. Every error returned is a *ProxyFailure.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target := ResolveTarget(pr.Path, pr.RawQuery)
	targetURL := target.URL()

	if s.allowedHosts != nil && !s.allowedHosts[strings.ToLower(hostname(target.Host))] {
		return nil, s.fail(targetURL, fmt.Errorf("%w: %q", ErrHostNotAllowed, target.Host))
	}

	header := FilterRequestHeaders(pr.Header, s.profile, target.Host, pr.Host)

	// GET and HEAD never carry a body upstream; everything else streams the
	// inbound body through unread.
	var body io.Reader
	var contentLength int64
	if pr.Method != http.MethodGet && pr.Method != http.MethodHead {
		body = pr.Body
		contentLength = pr.ContentLength
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", target.Host,
		"path", target.Path,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, targetURL, header, body, contentLength)
	if err != nil {
		return nil, s.fail(targetURL, err)
	}

	resp.Header = ShapeResponseHeaders(resp.Header, s.profile)
	return resp, nil
}

func (s *ProxyService) fail(targetURL string, err error) *ProxyFailure {
	return &ProxyFailure{
		Target: targetURL,
		Err:    err,
		Time:   s.now(),
	}
}

// hostname strips an optional port from a host segment.
func hostname(host string) string {
	return (&url.URL{Host: host}).Hostname()
}
