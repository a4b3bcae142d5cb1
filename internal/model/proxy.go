// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	// Path is the escaped inbound path with any mount prefix removed.
	Path          string
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	// Host is the proxy's own hostname as addressed by the caller, without port.
	Host string
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// Target is the upstream origin and path decoded from the inbound path.
type Target struct {
	Host  string
	Path  string
	Query string
}

// URL returns the upstream URL. It is always https and built verbatim,
// without validating Host.
func (t Target) URL() string {
	u := "https://" + t.Host + t.Path
	if t.Query != "" {
		u += "?" + t.Query
	}
	return u
}
