package service

import (
	"net/http"
	"slices"
	"strings"

	"model-proxy-go/internal/config"
)

// HopByHopHeaders are connection-scoped headers that must not cross the proxy
// in either direction; net/http manages them per connection.
var HopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// framingHeaders are upstream policies that would block embedding the relayed content.
var framingHeaders = []string{
	"Content-Security-Policy",
	"X-Frame-Options",
}

// preflightRequestHeaders must all be present for a full CORS preflight answer.
var preflightRequestHeaders = []string{
	"Origin",
	"Access-Control-Request-Method",
	"Access-Control-Request-Headers",
}

// FilterRequestHeaders builds the outbound header set. Only headers named in
// the profile's allow-list (case-insensitive) are copied; the synthetic Host,
// X-Forwarded-For, X-Forwarded-Proto and User-Agent values are then set and
// override anything the caller sent. inboundHost is used for X-Forwarded-For
// when the profile does not fix a value.
func FilterRequestHeaders(src http.Header, p config.Profile, targetHost, inboundHost string) http.Header {
	allowed := make(map[string]bool, len(p.AllowedHeaders))
	for _, name := range p.AllowedHeaders {
		allowed[strings.ToLower(name)] = true
	}

	dst := make(http.Header)
	for key, vals := range src {
		if allowed[strings.ToLower(key)] {
			dst[http.CanonicalHeaderKey(key)] = slices.Clone(vals)
		}
	}

	dst.Set("Host", targetHost)

	forwardedFor := p.ForwardedFor
	if forwardedFor == "" {
		forwardedFor = inboundHost
	}
	if forwardedFor != "" {
		dst.Set("X-Forwarded-For", forwardedFor)
	}
	if p.ForwardedProto != "" {
		dst.Set("X-Forwarded-Proto", p.ForwardedProto)
	}
	if p.UserAgent != "" {
		dst.Set("User-Agent", p.UserAgent)
	}

	return dst
}

// ShapeResponseHeaders returns a copy of the upstream response headers with
// hop-by-hop and (per profile) framing headers removed and the CORS headers
// overlaid.
func ShapeResponseHeaders(src http.Header, p config.Profile) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}

	for _, h := range HopByHopHeaders {
		dst.Del(h)
	}
	if p.StripFramingHeaders {
		for _, h := range framingHeaders {
			dst.Del(h)
		}
	}

	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Access-Control-Allow-Methods", p.CORSMethods)
	dst.Set("Access-Control-Allow-Headers", p.AllowHeadersValue())
	dst.Set("Referrer-Policy", "no-referrer")
	return dst
}

// PreflightHeaders answers an OPTIONS request. When the request carries
// Origin, Access-Control-Request-Method and Access-Control-Request-Headers it
// returns the full CORS header set and true; otherwise only an Allow header
// and false.
func PreflightHeaders(p config.Profile, req http.Header) (http.Header, bool) {
	dst := make(http.Header)
	for _, h := range preflightRequestHeaders {
		if req.Get(h) == "" {
			dst.Set("Allow", p.PreflightMethods)
			return dst, false
		}
	}

	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Access-Control-Allow-Methods", p.PreflightMethods)
	dst.Set("Access-Control-Allow-Headers", p.PreflightHeadersValue())
	dst.Set("Access-Control-Max-Age", "86400")
	return dst, true
}
