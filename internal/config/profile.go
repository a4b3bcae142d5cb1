package config

import (
	"fmt"
	"slices"
	"strings"
)

// Built-in deployment profile names.
const (
	ProfileDeno   = "deno"
	ProfileVercel = "vercel"
)

// Profile is the per-deployment configuration of the proxy pipeline.
// The two built-in presets reproduce the Deno Deploy and Vercel deployments;
// any field can be overridden from the [proxy] table.
type Profile struct {
	Name string

	// MountPrefix is removed from the inbound path before target resolution.
	MountPrefix string

	// AllowedHeaders lists the lowercase inbound header names copied upstream.
	AllowedHeaders []string

	// ForwardedFor is sent as X-Forwarded-For. Empty means the proxy's own
	// inbound hostname is sent instead.
	ForwardedFor string
	// ForwardedProto is sent as X-Forwarded-Proto when non-empty.
	ForwardedProto string
	UserAgent      string

	// CORSMethods is the Access-Control-Allow-Methods value on proxied responses.
	CORSMethods string
	// PreflightMethods is used for both the preflight Access-Control-Allow-Methods
	// and the fallback Allow header.
	PreflightMethods string
	PreflightHeaders []string

	// StripFramingHeaders drops Content-Security-Policy and X-Frame-Options
	// from upstream responses.
	StripFramingHeaders bool
	// ErrorTimestamp adds a timestamp field to the JSON failure body.
	ErrorTimestamp bool

	Landing Landing
}

// Landing describes the static page served at "/" and "/index.html".
type Landing struct {
	Title       string
	Heading     string
	ContentType string
	Services    []LandingService
}

// LandingService is one example upstream advertised on the landing page.
type LandingService struct {
	Name     string
	Endpoint string
}

var profiles = map[string]Profile{
	ProfileDeno: {
		Name: ProfileDeno,
		AllowedHeaders: []string{
			"accept", "accept-encoding", "accept-language",
			"content-type", "authorization", "anthropic-version",
			"x-api-key", "user-agent", "origin", "referer",
		},
		ForwardedFor:     "127.0.0.1",
		ForwardedProto:   "https",
		UserAgent:        "Deno-Deploy-Proxy/1.0",
		CORSMethods:      "GET, POST, PUT, DELETE, OPTIONS",
		PreflightMethods: "GET, POST, PUT, DELETE, OPTIONS",
		PreflightHeaders: []string{
			"accept", "content-type", "authorization",
			"anthropic-version", "x-api-key", "user-agent",
		},
		StripFramingHeaders: true,
		ErrorTimestamp:      true,
		Landing: Landing{
			Title:       "Model Proxy (Deno Deploy)",
			Heading:     "Model Proxy is Running on Deno Deploy!",
			ContentType: "text/html; charset=utf-8",
			Services: []LandingService{
				{Name: "Claude 3.5/3", Endpoint: "/api.anthropic.com/v1/messages"},
				{Name: "OpenAI GPT", Endpoint: "/api.openai.com/v1/chat/completions"},
				{Name: "Groq LLM", Endpoint: "/api.groq.com/v1/chat/completions"},
			},
		},
	},
	ProfileVercel: {
		Name:        ProfileVercel,
		MountPrefix: "/api",
		AllowedHeaders: []string{
			"accept", "content-type", "authorization",
			"anthropic-version", "x-api-key",
		},
		UserAgent:        "Vercel-Deno-Proxy",
		CORSMethods:      "GET, POST, PUT, DELETE, OPTIONS",
		PreflightMethods: "GET, POST, OPTIONS",
		PreflightHeaders: []string{
			"accept", "content-type", "authorization",
			"anthropic-version", "x-api-key",
		},
		Landing: Landing{
			Title:       "Claude Proxy (Vercel)",
			Heading:     "Proxy is Running on Vercel!",
			ContentType: "text/html",
			Services: []LandingService{
				{Name: "Claude 3.5", Endpoint: "/api.anthropic.com/v1/messages"},
			},
		},
	},
}

// ProfileNames returns the names of the built-in profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupProfile returns a copy of the named built-in profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	p.AllowedHeaders = slices.Clone(p.AllowedHeaders)
	p.PreflightHeaders = slices.Clone(p.PreflightHeaders)
	p.Landing.Services = slices.Clone(p.Landing.Services)
	return p, nil
}

// MustProfile is LookupProfile for the built-in names; it panics on an unknown name.
func MustProfile(name string) Profile {
	p, err := LookupProfile(name)
	if err != nil {
		panic(err)
	}
	return p
}

// AllowHeadersValue returns the allow-list joined for Access-Control-Allow-Headers.
func (p Profile) AllowHeadersValue() string {
	return strings.Join(p.AllowedHeaders, ", ")
}

// PreflightHeadersValue returns the preflight header list, falling back to the allow-list.
func (p Profile) PreflightHeadersValue() string {
	if len(p.PreflightHeaders) == 0 {
		return p.AllowHeadersValue()
	}
	return strings.Join(p.PreflightHeaders, ", ")
}
