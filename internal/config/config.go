// Package config handles TOML and environment configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Service identifies which binary is loading configuration. It selects the
// config search paths and the default listen port.
type Service string

const (
	ServiceGateway Service = "gateway"
	ServiceAuth    Service = "auth-service"
)

var defaultPorts = map[Service]int{
	ServiceGateway: 8080,
	ServiceAuth:    3001,
}

// Environments accepted in auth.environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// DevelopmentSecret is the signing secret used when none is configured and the
// environment is development. It is public knowledge and must never sign
// production tokens.
const DevelopmentSecret = "secret"

// envFiles are loaded (if present) before flags are resolved. Variables already
// set in the process environment are never overwritten.
var envFiles = []string{".env"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	AuthURL      string `kong:"name='auth-service-url',help='Auth service base URL (overrides config).',env='AUTH_SERVICE_URL'"`
	TasksURL     string `kong:"name='tasks-service-url',help='Tasks service base URL (overrides config).',env='TASKS_SERVICE_URL'"`
	JWTSecret    string `kong:"name='jwt-secret',help='HS256 signing secret (overrides config).',env='JWT_SECRET'"`
	Environment  string `kong:"name='env',help='Deployment environment: development|staging|production.',env='APP_ENV'"`
	DatabasePath string `kong:"name='database-path',help='SQLite database path (overrides config).',env='DATABASE_PATH'"`
}

// LoadEnvFiles loads .env files into the process environment. It must run
// before Kong parses flags so env-tagged fields see the values.
func LoadEnvFiles() {
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Routes   RoutesConfig   `toml:"routes"`
	Upstream UpstreamConfig `toml:"upstream"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use the service default"
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RoutesConfig holds the gateway routing table inputs.
type RoutesConfig struct {
	APIPrefix string `toml:"api_prefix"`
	AuthURL   string `toml:"auth_url"`
	TasksURL  string `toml:"tasks_url"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// AuthConfig holds token signing settings shared by every service that issues
// or verifies tokens.
type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	Environment   string `toml:"environment"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// DatabaseConfig holds the user store location.
type DatabaseConfig struct {
	Path string `toml:"path"`
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

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/taspla/<service>.toml then configs/<service>.toml. A missing file is not
// an error: defaults plus environment are a complete configuration.
func Load(cli *CLI, svc Service) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfigInPaths(searchPaths(svc))
	}

	var cfg Config
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

	cfg.setDefaults(svc)
	return &cfg, nil
}

// searchPaths lists paths checked in order when no explicit config is given.
func searchPaths(svc Service) []string {
	return []string{
		fmt.Sprintf("/etc/taspla/%s.toml", svc),
		fmt.Sprintf("configs/%s.toml", svc),
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.AuthURL != "" {
		c.Routes.AuthURL = cli.AuthURL
	}
	if cli.TasksURL != "" {
		c.Routes.TasksURL = cli.TasksURL
	}
	if cli.JWTSecret != "" {
		c.Auth.JWTSecret = cli.JWTSecret
	}
	if cli.Environment != "" {
		c.Auth.Environment = cli.Environment
	}
	if cli.DatabasePath != "" {
		c.Database.Path = cli.DatabasePath
	}
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"routes.auth_url":  c.Routes.AuthURL,
		"routes.tasks_url": c.Routes.TasksURL,
	} {
		if raw == "" {
			continue
		}
		if err := validateUpstreamURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if p := c.Routes.APIPrefix; p != "" {
		if p[0] != '/' || (len(p) > 1 && strings.HasSuffix(p, "/")) {
			return fmt.Errorf("routes.api_prefix must start with '/' and not end with '/'; got %q", p)
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
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("auth.token_ttl_hours must be non-negative; got %d", c.Auth.TokenTTLHours)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Auth.Environment) {
	case EnvDevelopment, EnvStaging, EnvProduction, "":
	default:
		return fmt.Errorf("auth.environment must be one of: development, staging, production; got %q", c.Auth.Environment)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		apiPrefix := c.Routes.APIPrefix
		if apiPrefix == "" {
			apiPrefix = "/api"
		}
		for _, reserved := range []string{apiPrefix, "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateUpstreamURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https; got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required; got %q", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not carry a query or fragment; got %q", raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults(svc Service) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPorts[svc]
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Routes.APIPrefix == "" {
		c.Routes.APIPrefix = "/api"
	}
	if c.Routes.AuthURL == "" {
		c.Routes.AuthURL = "http://localhost:3001"
	}
	if c.Routes.TasksURL == "" {
		c.Routes.TasksURL = "http://localhost:3002"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Auth.Environment == "" {
		c.Auth.Environment = EnvProduction
	}
	c.Auth.Environment = strings.ToLower(c.Auth.Environment)
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 7 * 24
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/auth.db"
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

// SigningSecret returns the configured HS256 secret. When none is configured
// it falls back to DevelopmentSecret in the development environment and fails
// everywhere else.
func (a *AuthConfig) SigningSecret() (secret []byte, fallback bool, err error) {
	if a.JWTSecret != "" {
		return []byte(a.JWTSecret), false, nil
	}
	if a.Environment == EnvDevelopment {
		return []byte(DevelopmentSecret), true, nil
	}
	return nil, false, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required in the %q environment", a.Environment)
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
