// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/model-proxy/config.toml",
	"configs/config.toml",
}

// reservedPaths are operational routes that must not collide with the metrics path.
var reservedPaths = []string{"/_/healthz", "/_/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Profile  string `kong:"help='Deployment profile: deno|vercel (overrides config).',env='PROXY_PROFILE'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string  // resolved config file path (unexported)
	profile  Profile // resolved deployment profile
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes int64  `toml:"body_max_bytes"` // 0 leaves inbound bodies unlimited
}

// ProxyConfig selects a deployment profile and optionally overrides its fields.
// Pointer fields distinguish "unset" from an explicit empty value.
type ProxyConfig struct {
	Profile             string   `toml:"profile"`
	MountPrefix         *string  `toml:"mount_prefix"`
	AllowedHeaders      []string `toml:"allowed_headers"`
	ForwardedFor        *string  `toml:"forwarded_for"`
	ForwardedProto      *string  `toml:"forwarded_proto"`
	UserAgent           string   `toml:"user_agent"`
	CORSMethods         string   `toml:"cors_methods"`
	PreflightMethods    string   `toml:"preflight_methods"`
	PreflightHeaders    []string `toml:"preflight_headers"`
	StripFramingHeaders *bool    `toml:"strip_framing_headers"`
	ErrorTimestamp      *bool    `toml:"error_timestamp"`

	// AllowedHosts restricts upstream targets. Empty allows any host.
	AllowedHosts []string `toml:"allowed_hosts"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int   `toml:"timeout_seconds"` // 0 leaves the client without a timeout
	IdleConnections int   `toml:"idle_connections"`
	HTTP2           *bool `toml:"http2"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/model-proxy/config.toml then configs/config.toml, and falls back to
// built-in defaults when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()

	p, err := cfg.Proxy.resolve()
	if err != nil {
		return nil, fmt.Errorf("config: profile: %w", err)
	}
	cfg.profile = p
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Profile != "" {
		c.Proxy.Profile = cli.Profile
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Proxy.Profile != "" {
		if _, err := LookupProfile(c.Proxy.Profile); err != nil {
			return fmt.Errorf("proxy.profile: %w", err)
		}
	}
	if mp := c.Proxy.MountPrefix; mp != nil && *mp != "" {
		if !strings.HasPrefix(*mp, "/") || strings.HasSuffix(*mp, "/") {
			return fmt.Errorf("proxy.mount_prefix must start with '/' and not end with '/'; got %q", *mp)
		}
	}
	for _, h := range c.Proxy.AllowedHeaders {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("proxy.allowed_headers must not contain empty names")
		}
	}
	for _, h := range c.Proxy.AllowedHosts {
		if strings.TrimSpace(h) == "" || strings.Contains(h, "/") {
			return fmt.Errorf("proxy.allowed_hosts entries must be bare hostnames; got %q", h)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must be non-negative")
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		if p == "/" || p == "/index.html" {
			return fmt.Errorf("metrics.path %q conflicts with the landing page", p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Proxy.Profile == "" {
		c.Proxy.Profile = ProfileDeno
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.HTTP2 == nil {
		enabled := true
		c.Upstream.HTTP2 = &enabled
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/_/metrics"
	}
}

// resolve builds the effective profile: the named preset with overrides applied.
func (pc *ProxyConfig) resolve() (Profile, error) {
	name := pc.Profile
	if name == "" {
		name = ProfileDeno
	}
	p, err := LookupProfile(name)
	if err != nil {
		return Profile{}, err
	}

	if pc.MountPrefix != nil {
		p.MountPrefix = *pc.MountPrefix
	}
	if len(pc.AllowedHeaders) > 0 {
		p.AllowedHeaders = lowerAll(pc.AllowedHeaders)
	}
	if pc.ForwardedFor != nil {
		p.ForwardedFor = *pc.ForwardedFor
	}
	if pc.ForwardedProto != nil {
		p.ForwardedProto = *pc.ForwardedProto
	}
	if pc.UserAgent != "" {
		p.UserAgent = pc.UserAgent
	}
	if pc.CORSMethods != "" {
		p.CORSMethods = pc.CORSMethods
	}
	if pc.PreflightMethods != "" {
		p.PreflightMethods = pc.PreflightMethods
	}
	if len(pc.PreflightHeaders) > 0 {
		p.PreflightHeaders = lowerAll(pc.PreflightHeaders)
	}
	if pc.StripFramingHeaders != nil {
		p.StripFramingHeaders = *pc.StripFramingHeaders
	}
	if pc.ErrorTimestamp != nil {
		p.ErrorTimestamp = *pc.ErrorTimestamp
	}
	return p, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

// Profile returns the effective deployment profile. Configs built without
// Load resolve their [proxy] table on demand.
func (c *Config) Profile() Profile {
	if c.profile.Name != "" {
		return c.profile
	}
	p, err := c.Proxy.resolve()
	if err != nil {
		return MustProfile(ProfileDeno)
	}
	return p
}

// AllowedHosts returns the lowercase upstream host allow-list; nil allows any host.
func (c *Config) AllowedHosts() map[string]bool {
	if len(c.Proxy.AllowedHosts) == 0 {
		return nil
	}
	hosts := make(map[string]bool, len(c.Proxy.AllowedHosts))
	for _, h := range c.Proxy.AllowedHosts {
		hosts[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return hosts
}

// HTTP2Enabled reports whether the upstream transport negotiates HTTP/2.
func (u *UpstreamConfig) HTTP2Enabled() bool {
	return u.HTTP2 == nil || *u.HTTP2
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
