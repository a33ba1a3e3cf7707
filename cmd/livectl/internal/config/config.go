// Package config loads livectl settings from defaults, a YAML or TOML file
// and LIVECTL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/recera/liveclient/internal/logging"
	"github.com/recera/liveclient/pkg/live"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "LIVECTL"

// Config holds everything a session needs
type Config struct {
	URL         string            `envconfig:"URL"`
	Topic       string            `envconfig:"TOPIC"`
	Container   string            `envconfig:"CONTAINER"`
	Page        string            `envconfig:"PAGE"`
	Params      map[string]string `envconfig:"PARAMS"`
	Heartbeat   time.Duration     `envconfig:"HEARTBEAT"`
	Reconnect   Reconnect         `envconfig:"RECONNECT"`
	MetricsAddr string            `envconfig:"METRICS_ADDR"`
	Log         Log               `envconfig:"LOG"`
}

// Reconnect mirrors live.ReconnectPolicy
type Reconnect struct {
	BaseDelay   time.Duration `envconfig:"BASE_DELAY"`
	MaxDelay    time.Duration `envconfig:"MAX_DELAY"`
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS"`
}

// Log selects level, format and destination of log output
type Log struct {
	Level       string `envconfig:"LEVEL"`
	Development bool   `envconfig:"DEV"`
	Output      string `envconfig:"OUTPUT"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		URL:       "ws://localhost:4000/live/websocket",
		Container: "app",
		Params:    map[string]string{},
		Heartbeat: live.DefaultHeartbeatInterval,
		Reconnect: Reconnect{
			BaseDelay:   live.DefaultBaseDelay,
			MaxDelay:    live.DefaultMaxDelay,
			MaxAttempts: live.DefaultMaxAttempts,
		},
		Log: Log{Level: "info"},
	}
}

// Load layers the file at path (if any) and the environment over Default
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

// fileConfig is the on-disk shape. Pointers tell set from unset.
type fileConfig struct {
	URL         *string           `yaml:"url" toml:"url"`
	Topic       *string           `yaml:"topic" toml:"topic"`
	Container   *string           `yaml:"container" toml:"container"`
	Page        *string           `yaml:"page" toml:"page"`
	Params      map[string]string `yaml:"params" toml:"params"`
	Heartbeat   *string           `yaml:"heartbeat" toml:"heartbeat"`
	MetricsAddr *string           `yaml:"metrics_addr" toml:"metrics_addr"`
	Reconnect   struct {
		BaseDelay   *string `yaml:"base_delay" toml:"base_delay"`
		MaxDelay    *string `yaml:"max_delay" toml:"max_delay"`
		MaxAttempts *int    `yaml:"max_attempts" toml:"max_attempts"`
	} `yaml:"reconnect" toml:"reconnect"`
	Log struct {
		Level       *string `yaml:"level" toml:"level"`
		Development *bool   `yaml:"development" toml:"development"`
		Output      *string `yaml:"output" toml:"output"`
	} `yaml:"log" toml:"log"`
}

// LoadFile merges the settings present in a .yaml, .yml or .toml file into
// cfg
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("load config: unsupported file type %q", filepath.Ext(path))
	}

	setString(&cfg.URL, raw.URL)
	setString(&cfg.Topic, raw.Topic)
	setString(&cfg.Container, raw.Container)
	setString(&cfg.Page, raw.Page)
	setString(&cfg.MetricsAddr, raw.MetricsAddr)
	setString(&cfg.Log.Level, raw.Log.Level)
	setString(&cfg.Log.Output, raw.Log.Output)
	if raw.Log.Development != nil {
		cfg.Log.Development = *raw.Log.Development
	}
	if raw.Params != nil {
		cfg.Params = raw.Params
	}
	if raw.Reconnect.MaxAttempts != nil {
		cfg.Reconnect.MaxAttempts = *raw.Reconnect.MaxAttempts
	}

	durations := []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"heartbeat", raw.Heartbeat, &cfg.Heartbeat},
		{"reconnect.base_delay", raw.Reconnect.BaseDelay, &cfg.Reconnect.BaseDelay},
		{"reconnect.max_delay", raw.Reconnect.MaxDelay, &cfg.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// Validate reports every problem with cfg at once
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.URL)
	switch {
	case c.URL == "":
		errs = append(errs, errors.New("url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("url: scheme must be ws or wss, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("url: missing host"))
	}

	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if strings.TrimSpace(c.Container) == "" {
		errs = append(errs, errors.New("container is required"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.Reconnect.BaseDelay <= 0 {
		errs = append(errs, errors.New("reconnect base delay must be positive"))
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, errors.New("reconnect max delay must be at least the base delay"))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect max attempts must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Policy returns the reconnect policy for the session
func (c Config) Policy() live.ReconnectPolicy {
	return live.ReconnectPolicy{
		BaseDelay:   c.Reconnect.BaseDelay,
		MaxDelay:    c.Reconnect.MaxDelay,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// JoinParams returns the params sent with the join
func (c Config) JoinParams() map[string]any {
	params := make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		params[k] = v
	}
	return params
}

// Logging returns the logger configuration
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Log.Level != "" {
		cfg.Level = c.Log.Level
	}
	cfg.Development = c.Log.Development
	if c.Log.Output != "" {
		cfg.OutputPaths = []string{c.Log.Output}
	}
	return cfg
}
