package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
backend:
  base_url: "https://api.example.com"
  timeout: 5s

socket:
  url: "wss://rt.example.com"
  reconnect_min_delay: 500ms
  reconnect_max_delay: 10s

server:
  listen_addr: ":9000"
  auth:
    username: "ops"
    password_hash: "$2a$10$abc"

notifications:
  ttl: 15s

phone:
  country_code: "351"

metrics:
  enabled: true

logging:
  level: "debug"
  format: "json"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("Backend.BaseURL = %v, want https://api.example.com", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", cfg.Backend.Timeout)
	}
	if cfg.Socket.URL != "wss://rt.example.com" {
		t.Errorf("Socket.URL = %v, want wss://rt.example.com", cfg.Socket.URL)
	}
	if cfg.Socket.ReconnectMinDelay != 500*time.Millisecond {
		t.Errorf("Socket.ReconnectMinDelay = %v, want 500ms", cfg.Socket.ReconnectMinDelay)
	}
	if cfg.Server.Auth.Username != "ops" {
		t.Errorf("Server.Auth.Username = %v, want ops", cfg.Server.Auth.Username)
	}
	if cfg.Notifications.TTL != 15*time.Second {
		t.Errorf("Notifications.TTL = %v, want 15s", cfg.Notifications.TTL)
	}
	if cfg.Phone.CountryCode != "351" {
		t.Errorf("Phone.CountryCode = %v, want 351", cfg.Phone.CountryCode)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Metrics)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend:\n  base_url: http://localhost:3000\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Socket.URL != "http://localhost:3000" {
		t.Errorf("Socket.URL = %v, want backend URL", cfg.Socket.URL)
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Backend.Timeout = %v, want 30s", cfg.Backend.Timeout)
	}
	if cfg.Notifications.TTL != 10*time.Second {
		t.Errorf("Notifications.TTL = %v, want 10s", cfg.Notifications.TTL)
	}
	if cfg.Socket.ReconnectMinDelay != 500*time.Millisecond {
		t.Errorf("Socket.ReconnectMinDelay = %v, want 500ms", cfg.Socket.ReconnectMinDelay)
	}
	if cfg.Socket.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("Socket.ReconnectMaxDelay = %v, want 30s", cfg.Socket.ReconnectMaxDelay)
	}
	if cfg.Phone.CountryCode != "55" {
		t.Errorf("Phone.CountryCode = %v, want 55", cfg.Phone.CountryCode)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:8090" {
		t.Errorf("Server.ListenAddr = %v, want 127.0.0.1:8090", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if !strings.HasSuffix(cfg.Database.Path, "zapdesk.db") {
		t.Errorf("Database.Path = %v, want .../zapdesk.db", cfg.Database.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ZAPDESK_BACKEND_URL", "https://env.example.com")
	t.Setenv("ZAPDESK_TENANT_ID", "42")
	t.Setenv("ZAPDESK_LISTEN_ADDR", ":7070")
	t.Setenv("ZAPDESK_LOG_LEVEL", "warn")
	t.Setenv("ZAPDESK_DASHBOARD_ALLOWED_IPS", "127.0.0.1,10.0.0.0/8")

	cfg, err := Load(writeConfig(t, "backend:\n  base_url: http://file.example.com\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("Backend.BaseURL = %v, want env value", cfg.Backend.BaseURL)
	}
	if cfg.Socket.TenantID != "42" {
		t.Errorf("Socket.TenantID = %v, want 42", cfg.Socket.TenantID)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("Server.ListenAddr = %v, want :7070", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
	if len(cfg.Server.AllowedIPs) != 2 || cfg.Server.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("Server.AllowedIPs = %v, want two entries", cfg.Server.AllowedIPs)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("ZAPDESK_BACKEND_URL", "http://localhost:3000")
	if _, err := Load(""); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Backend: BackendConfig{BaseURL: "https://api.example.com"}}
		setDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "missing backend", modify: func(c *Config) { c.Backend.BaseURL = "" }, wantErr: "backend.base_url is required"},
		{name: "relative backend", modify: func(c *Config) { c.Backend.BaseURL = "/api" }, wantErr: "absolute"},
		{name: "ws backend", modify: func(c *Config) { c.Backend.BaseURL = "ws://api" }, wantErr: "unsupported scheme"},
		{name: "ftp socket", modify: func(c *Config) { c.Socket.URL = "ftp://rt" }, wantErr: "socket.url"},
		{name: "zero ttl", modify: func(c *Config) { c.Notifications.TTL = -time.Second }, wantErr: "notifications.ttl"},
		{name: "country code", modify: func(c *Config) { c.Phone.CountryCode = "+55" }, wantErr: "country_code"},
		{name: "backoff order", modify: func(c *Config) { c.Socket.ReconnectMaxDelay = time.Millisecond }, wantErr: "reconnect_max_delay"},
		{name: "sample rate", modify: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample_rate"},
		{name: "log level", modify: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "logging.level"},
		{name: "allowed ips", modify: func(c *Config) { c.Server.AllowedIPs = []string{"10.0.0.0/8", "nope"} }, wantErr: "server.allowed_ips"},
		{name: "log format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
