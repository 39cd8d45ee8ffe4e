package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8000
	DefaultAdminPort         = 8001
	DefaultDataRoot          = "data"
	DefaultStaticRoot        = "."
	DefaultMaxBodyBytes      = 10 << 20
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the document router listens on (default 8000).
	HTTPPort int `yaml:"http_port"`

	// AdminPort serves /healthz, /metrics, /hooks and the change feed.
	// Zero disables the admin listener.
	AdminPort int `yaml:"admin_port"`

	// GRPCPort serves the gRPC health service. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// DataRoot is the directory backing the /data/ namespace.
	DataRoot string `yaml:"data_root"`

	// StaticRoot is the directory served for every path outside /data/.
	StaticRoot string `yaml:"static_root"`

	// MaxBodyBytes bounds the size of a POSTed document.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	Log LogConfig `yaml:"log"`

	// Hooks are webhook targets notified after matching document writes.
	Hooks []HookConfig `yaml:"hooks"`

	// Seed maps document paths (relative to DataRoot) to default values that
	// are written at startup when the document does not exist yet.
	Seed map[string]any `yaml:"seed"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// HookConfig defines one webhook delivery target.
type HookConfig struct {
	// Name identifies the hook in logs and delivery records.
	Name string `yaml:"name"`

	// Match is a doublestar glob over the document path, e.g. "orders/**/*.json".
	// Empty matches every document.
	Match string `yaml:"match"`

	// Type is one of: http | slack | teams.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`

	// Cooldown suppresses re-deliveries of this hook for the given duration.
	Cooldown time.Duration `yaml:"cooldown"`
}

// URL returns the webhook URL resolved from the environment.
func (h HookConfig) URL() string {
	if h.URLEnv == "" {
		return ""
	}
	return os.Getenv(h.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is also the
// configuration used when the server starts without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			AdminPort:         DefaultAdminPort,
			DataRoot:          DefaultDataRoot,
			StaticRoot:        DefaultStaticRoot,
			MaxBodyBytes:      DefaultMaxBodyBytes,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
			Log: LogConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
		},
	}
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	if err := validate(c); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.AdminPort < 0 || s.AdminPort > 65535 {
		return fmt.Errorf("server.admin_port %d is out of range [0, 65535]", s.AdminPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.AdminPort != 0 && s.AdminPort == s.HTTPPort {
		return fmt.Errorf("server.admin_port must differ from server.http_port")
	}
	if s.GRPCPort != 0 && (s.GRPCPort == s.HTTPPort || s.GRPCPort == s.AdminPort) {
		return fmt.Errorf("server.grpc_port %d collides with another listener", s.GRPCPort)
	}
	if s.DataRoot == "" {
		return fmt.Errorf("server.data_root must not be empty")
	}
	if s.StaticRoot == "" {
		return fmt.Errorf("server.static_root must not be empty")
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if s.ReadHeaderTimeout < 0 || s.ReadTimeout < 0 || s.WriteTimeout < 0 ||
		s.IdleTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	switch s.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("server.log.format %q unknown: want json|text", s.Log.Format)
	}
	for i, h := range s.Hooks {
		if h.Name == "" {
			return fmt.Errorf("server.hooks[%d].name is required", i)
		}
		switch h.Type {
		case "http", "slack", "teams":
		default:
			return fmt.Errorf("server.hooks[%d].type %q unknown: want http|slack|teams", i, h.Type)
		}
		if h.Match != "" && !doublestar.ValidatePattern(h.Match) {
			return fmt.Errorf("server.hooks[%d].match %q is not a valid glob", i, h.Match)
		}
		if h.Cooldown < 0 {
			return fmt.Errorf("server.hooks[%d].cooldown must not be negative", i)
		}
	}
	return nil
}
