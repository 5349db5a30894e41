package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Install   InstallConfig
	External  ExternalConfig
	Launch    LaunchConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Shell     ShellConfig
}

// ServerConfig holds the command surface HTTP listener configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"7860"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	// AllowNullOrigin trusts the opaque "null" origin sent by file pages.
	AllowNullOrigin bool `envconfig:"ALLOW_NULL_ORIGIN" default:"false"`
}

// BackendConfig describes how the supervised backend process is launched.
type BackendConfig struct {
	Command      string        `envconfig:"BACKEND_COMMAND" default:"open-webui"`
	Args         []string      `envconfig:"BACKEND_ARGS" default:"serve"`
	WorkDir      string        `envconfig:"BACKEND_WORKDIR"`
	Host         string        `envconfig:"BACKEND_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"BACKEND_PORT" default:"8080"`
	HealthPath   string        `envconfig:"BACKEND_HEALTH_PATH" default:"/health"`
	ReadyTimeout time.Duration `envconfig:"BACKEND_READY_TIMEOUT" default:"2m"`
	UsePTY       bool          `envconfig:"BACKEND_USE_PTY" default:"false"`
	StartTimeout time.Duration `envconfig:"BACKEND_START_TIMEOUT" default:"0s"`
	AutoStart    bool          `envconfig:"AUTO_START" default:"false"`
}

// InstallConfig holds installation gate configuration.
type InstallConfig struct {
	Dir           string `envconfig:"INSTALL_DIR"`
	Command       string `envconfig:"INSTALL_COMMAND"`
	RemoveCommand string `envconfig:"REMOVE_COMMAND"`
	Watch         bool   `envconfig:"INSTALL_WATCH" default:"true"`
}

// ExternalConfig holds the externally-supplied endpoint mode.
type ExternalConfig struct {
	Enabled     bool   `envconfig:"EXTERNAL_MODE" default:"false"`
	URL         string `envconfig:"EXTERNAL_URL" default:"http://localhost:8080"`
	FallbackURL string `envconfig:"FALLBACK_URL" default:"http://localhost:8080"`
}

// LaunchConfig holds the crash-loop guard around backend starts.
type LaunchConfig struct {
	FailureThreshold uint32        `envconfig:"LAUNCH_FAILURE_THRESHOLD" default:"5"`
	Cooldown         time.Duration `envconfig:"LAUNCH_COOLDOWN" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ShellConfig holds presentation settings.
type ShellConfig struct {
	AppName    string `envconfig:"APP_NAME" default:"Open WebUI"`
	AppVersion string `envconfig:"APP_VERSION" default:"0.1.0"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Install.Dir == "" {
		cfg.Install.Dir = DefaultInstallDir()
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "7860",
			Host: "127.0.0.1",
		},
		Backend: BackendConfig{
			Command:      "open-webui",
			Args:         []string{"serve"},
			Host:         "0.0.0.0",
			Port:         "8080",
			HealthPath:   "/health",
			ReadyTimeout: 2 * time.Minute,
		},
		Install: InstallConfig{
			Dir:   DefaultInstallDir(),
			Watch: true,
		},
		External: ExternalConfig{
			URL:         "http://localhost:8080",
			FallbackURL: "http://localhost:8080",
		},
		Launch: LaunchConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Shell: ShellConfig{
			AppName:    "Open WebUI",
			AppVersion: "0.1.0",
		},
	}
}

// Addr returns the command surface listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// Address returns the address the backend is told to bind.
func (b BackendConfig) Address() string {
	return "http://" + net.JoinHostPort(b.Host, b.Port)
}

// DefaultInstallDir returns the per-user directory that holds the backend
// installation and its manifest.
func DefaultInstallDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "deskshell", "backend")
	}
	return filepath.Join(os.TempDir(), "deskshell", "backend")
}
