// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/thumbnail-proxy/config.toml",
	"configs/config.toml",
}

// Signature length bounds. A one-character signature could be "c" or "e",
// which the URL grammar reads as a gravity; the maximum is a full SHA-1 hex digest.
const (
	minKeyLength = 2
	maxKeyLength = 40
)

// reservedRoutes are served by the proxy itself and never forwarded.
var reservedRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Origin   string           `kong:"help='Origin base URL (overrides config).',env='ORIGIN_URL'"`
	Secret   string           `kong:"help='Thumbnail signing secret (overrides config).',env='THUMBNAIL_SECRET'"`
	LogLevel string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version  kong.VersionFlag `kong:"help='Print version and exit.'"`

	Serve ServeCmd `kong:"cmd,default='1',help='Run the thumbnail proxy (default).'"`
	Sign  SignCmd  `kong:"cmd,help='Print the signed form of an unsigned thumbnail path.'"`
}

// ServeCmd runs the HTTP server.
type ServeCmd struct{}

// SignCmd signs thumbnail paths with the configured secret.
type SignCmd struct {
	Paths []string `kong:"arg,help='Unsigned thumbnail paths, e.g. /media/photo_50x50-nw.jpg.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Origin    OriginConfig    `toml:"origin"`
	Thumbnail ThumbnailConfig `toml:"thumbnail"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// OriginConfig selects the downstream origin. Exactly one of BaseURL and Root is set.
type OriginConfig struct {
	BaseURL         string `toml:"base_url"`
	Root            string `toml:"root"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// ThumbnailConfig controls URL recognition and rendering. It is read-only after Load.
type ThumbnailConfig struct {
	URLs             []string `toml:"urls"`
	Prefix           string   `toml:"prefix"`
	Secret           string   `toml:"secret"`
	KeyLength        int      `toml:"keylength"`
	Crop             *bool    `toml:"crop"` // nil leaves the crop flag to the dimension token
	PreserveMetadata bool     `toml:"preserve_metadata"`
	Write            bool     `toml:"write"`
	TTLSeconds       int      `toml:"ttl_seconds"`
	TmpDir           string   `toml:"tmp_dir"`
	JPEGQuality      int      `toml:"jpeg_quality"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/thumbnail-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
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
	if cli.Origin != "" {
		c.Origin.BaseURL = cli.Origin
		c.Origin.Root = ""
	}
	if cli.Secret != "" {
		c.Thumbnail.Secret = cli.Secret
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if err := c.Origin.validate(); err != nil {
		return err
	}
	if err := c.Thumbnail.validate(); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
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

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func (o *OriginConfig) validate() error {
	switch {
	case o.BaseURL == "" && o.Root == "":
		return fmt.Errorf("one of origin.base_url or origin.root is required")
	case o.BaseURL != "" && o.Root != "":
		return fmt.Errorf("origin.base_url and origin.root are mutually exclusive")
	}

	if o.BaseURL != "" {
		u, err := url.Parse(o.BaseURL)
		if err != nil {
			return fmt.Errorf("origin.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin.base_url must use http or https; got %q", o.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("origin.base_url has no host; got %q", o.BaseURL)
		}
	}
	if o.Root != "" {
		info, err := os.Stat(o.Root)
		if err != nil {
			return fmt.Errorf("origin.root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("origin.root must be a directory; got %q", o.Root)
		}
	}

	if o.TimeoutSeconds < 0 {
		return fmt.Errorf("origin.timeout_seconds must be non-negative; got %d", o.TimeoutSeconds)
	}
	if o.IdleConnections < 0 {
		return fmt.Errorf("origin.idle_connections must be non-negative; got %d", o.IdleConnections)
	}
	return nil
}

func (t *ThumbnailConfig) validate() error {
	for _, u := range t.URLs {
		if u == "" || u[0] != '/' {
			return fmt.Errorf("thumbnail.urls entries must start with '/'; got %q", u)
		}
	}
	if t.Prefix != "" && t.Prefix[0] != '/' {
		return fmt.Errorf("thumbnail.prefix must start with '/'; got %q", t.Prefix)
	}

	// Signing needs both halves.
	if t.Secret != "" && t.KeyLength == 0 {
		return fmt.Errorf("thumbnail.keylength is required when thumbnail.secret is set")
	}
	if t.Secret == "" && t.KeyLength != 0 {
		return fmt.Errorf("thumbnail.secret is required when thumbnail.keylength is set")
	}
	if t.KeyLength != 0 && (t.KeyLength < minKeyLength || t.KeyLength > maxKeyLength) {
		return fmt.Errorf("thumbnail.keylength must be %d-%d; got %d", minKeyLength, maxKeyLength, t.KeyLength)
	}

	if t.TTLSeconds < 0 {
		return fmt.Errorf("thumbnail.ttl_seconds must be non-negative; got %d", t.TTLSeconds)
	}
	if t.JPEGQuality < 0 || t.JPEGQuality > 100 {
		return fmt.Errorf("thumbnail.jpeg_quality must be 1–100; got %d", t.JPEGQuality)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Origin.TimeoutSeconds == 0 {
		c.Origin.TimeoutSeconds = 30
	}
	if c.Origin.IdleConnections == 0 {
		c.Origin.IdleConnections = 100
	}
	if len(c.Thumbnail.URLs) == 0 {
		c.Thumbnail.URLs = []string{"/"}
	}
	if c.Thumbnail.TmpDir == "" {
		c.Thumbnail.TmpDir = os.TempDir()
	}
	if c.Thumbnail.JPEGQuality == 0 {
		c.Thumbnail.JPEGQuality = 90
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
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

// SignatureEnabled reports whether thumbnail URLs must carry a signature.
func (t *ThumbnailConfig) SignatureEnabled() bool {
	return t.Secret != "" && t.KeyLength > 0
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may hold the thumbnail signing secret.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if c.Thumbnail.Secret == "" {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
