package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/zapdesk/internal/ipfilter"
)

// Config represents the main configuration
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Socket        SocketConfig        `yaml:"socket"`
	Session       SessionConfig       `yaml:"session"`
	Database      DatabaseConfig      `yaml:"database"`
	Server        ServerConfig        `yaml:"server"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Phone         PhoneConfig         `yaml:"phone"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// BackendConfig is the REST API the console talks to
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"ZAPDESK_BACKEND_URL"`
	Timeout time.Duration `yaml:"timeout" env:"ZAPDESK_BACKEND_TIMEOUT"`
}

// SocketConfig is the realtime event source
type SocketConfig struct {
	URL string `yaml:"url" env:"ZAPDESK_SOCKET_URL"`

	// TenantID overrides the tenant read from the session
	TenantID          string        `yaml:"tenant_id" env:"ZAPDESK_TENANT_ID"`
	ReconnectMinDelay time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
}

type SessionConfig struct {
	Path string `yaml:"path" env:"ZAPDESK_SESSION_PATH"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"ZAPDESK_DATABASE_PATH"`
}

// ServerConfig is the local dashboard listener
type ServerConfig struct {
	ListenAddr string     `yaml:"listen_addr" env:"ZAPDESK_LISTEN_ADDR"`
	Auth       AuthConfig `yaml:"auth"`

	// AllowedIPs limits the dashboard to these IPs and CIDRs; empty allows all
	AllowedIPs []string `yaml:"allowed_ips" env:"ZAPDESK_DASHBOARD_ALLOWED_IPS" envSeparator:","`
}

// AuthConfig enables HTTP basic auth on the dashboard when PasswordHash is set
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash" env:"ZAPDESK_DASHBOARD_PASSWORD_HASH"`
}

type NotificationsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type PhoneConfig struct {
	CountryCode string `yaml:"country_code"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint" env:"ZAPDESK_TRACING_ENDPOINT"`
	Stdout     bool    `yaml:"stdout"`
	SampleRate float64 `yaml:"sample_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"ZAPDESK_LOG_LEVEL"`
	Format string `yaml:"format"`
}

// Load reads the config file, applies environment overrides and validates.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Socket.URL == "" {
		cfg.Socket.URL = cfg.Backend.BaseURL
	}
	if cfg.Socket.ReconnectMinDelay == 0 {
		cfg.Socket.ReconnectMinDelay = 500 * time.Millisecond
	}
	if cfg.Socket.ReconnectMaxDelay == 0 {
		cfg.Socket.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.Socket.HandshakeTimeout == 0 {
		cfg.Socket.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultStatePath("session.db")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultStatePath("zapdesk.db")
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1:8090"
	}
	if cfg.Server.Auth.Username == "" {
		cfg.Server.Auth.Username = "admin"
	}
	if cfg.Notifications.TTL == 0 {
		cfg.Notifications.TTL = 10 * time.Second
	}
	if cfg.Phone.CountryCode == "" {
		cfg.Phone.CountryCode = "55"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func defaultStatePath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return dir + string(os.PathSeparator) + "zapdesk" + string(os.PathSeparator) + name
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if err := absoluteURL(c.Backend.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if err := absoluteURL(c.Socket.URL, "http", "https", "ws", "wss"); err != nil {
		return fmt.Errorf("socket.url: %w", err)
	}
	if c.Socket.ReconnectMaxDelay < c.Socket.ReconnectMinDelay {
		return fmt.Errorf("socket.reconnect_max_delay must not be less than reconnect_min_delay")
	}
	if _, err := ipfilter.Parse(c.Server.AllowedIPs); err != nil {
		return fmt.Errorf("server.allowed_ips: %w", err)
	}
	if c.Notifications.TTL <= 0 {
		return fmt.Errorf("notifications.ttl must be positive")
	}
	if strings.Trim(c.Phone.CountryCode, "0123456789") != "" {
		return fmt.Errorf("phone.country_code must contain only digits")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}
	return nil
}

func absoluteURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
