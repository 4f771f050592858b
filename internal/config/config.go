package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/parsed-text/internal/parsedtext"
)

// Loader reads configuration through its own viper instance
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with the standard search paths and env prefix
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/parsed-text/")
	v.AddConfigPath("$HOME/.parsed-text/")

	// Environment variable overrides, e.g. PARSEDTEXT_SERVER_PORT
	v.SetEnvPrefix("PARSEDTEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load reads the config file (if any), applies env overrides and validates
func (l *Loader) Load(configPath string) (*Config, error) {
	config := GetDefaults()
	registerDefaults(l.v, config)

	if configPath != "" {
		l.v.SetConfigFile(configPath)
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := l.unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// unmarshal decodes into config. A configured option list replaces the
// defaults instead of being merged element by element into them.
func (l *Loader) unmarshal(config *Config) error {
	if l.v.IsSet("parse.options") {
		config.Parse.Options = nil
	}
	if err := l.v.Unmarshal(config); err != nil {
		return err
	}
	return l.restoreStyleKeys(config)
}

// styleSection mirrors the free-form maps under parse. viper lowercases
// every key it reads, which breaks camelCase style names like fontSize.
type styleSection struct {
	Parse struct {
		Options []struct {
			Style parsedtext.Style `yaml:"style"`
			Extra map[string]any   `yaml:"extra"`
		} `yaml:"options"`
		Props struct {
			Style         parsedtext.Style `yaml:"style"`
			ChildrenStyle parsedtext.Style `yaml:"children_style"`
			WrapStyle     parsedtext.Style `yaml:"wrap_style"`
		} `yaml:"props"`
	} `yaml:"parse"`
}

// restoreStyleKeys re-reads style and extra maps from the config file with
// their original key case
func (l *Loader) restoreStyleKeys(config *Config) error {
	path := l.v.ConfigFileUsed()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var raw styleSection
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode parse section: %w", err)
	}

	props := raw.Parse.Props
	if props.Style != nil {
		config.Parse.Props.Style = props.Style
	}
	if props.ChildrenStyle != nil {
		config.Parse.Props.ChildrenStyle = props.ChildrenStyle
	}
	if props.WrapStyle != nil {
		config.Parse.Props.WrapStyle = props.WrapStyle
	}

	if len(raw.Parse.Options) != len(config.Parse.Options) {
		return nil
	}
	for i, opt := range raw.Parse.Options {
		if opt.Style != nil {
			config.Parse.Options[i].Style = opt.Style
		}
		if opt.Extra != nil {
			config.Parse.Options[i].Extra = opt.Extra
		}
	}
	return nil
}

// registerDefaults makes scalar keys known to viper so env overrides apply
func registerDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_pattern_length", c.Server.MaxPatternLength)
	v.SetDefault("server.rate_limit.enabled", c.Server.RateLimit.Enabled)
	v.SetDefault("parse.platform", c.Parse.Platform)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("cache.enabled", c.Cache.Enabled)
	v.SetDefault("cache.redis_url", c.Cache.RedisURL)
	v.SetDefault("store.enabled", c.Store.Enabled)
	v.SetDefault("store.database_url", c.Store.DatabaseURL)
	v.SetDefault("websocket.username", c.WebSocket.Username)
	v.SetDefault("websocket.password", c.WebSocket.Password)
	v.SetDefault("batch.worker_count", c.Batch.WorkerCount)
	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("nats.enabled", c.NATS.Enabled)
	v.SetDefault("nats.url", c.NATS.URL)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxTextBytes <= 0 {
		return fmt.Errorf("invalid max_text_bytes: %d", config.Server.MaxTextBytes)
	}

	if config.Server.RateLimit.Enabled && config.Server.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.Server.RateLimit.RequestsPerMin)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if _, err := parsedtext.ParsePlatform(config.Parse.Platform); err != nil {
		return err
	}

	for i, opt := range config.Parse.Options {
		if config.Server.MaxPatternLength > 0 && len(opt.Pattern) > config.Server.MaxPatternLength {
			return fmt.Errorf("parse option %d: pattern longer than %d bytes", i, config.Server.MaxPatternLength)
		}
	}

	if err := parsedtext.Validate(config.Parse.Options); err != nil {
		return fmt.Errorf("invalid parse options: %w", err)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache enabled without redis_url")
	}

	if config.Store.Enabled && config.Store.DatabaseURL == "" {
		return fmt.Errorf("store enabled without database_url")
	}

	if config.NATS.Enabled && config.NATS.URL == "" {
		return fmt.Errorf("nats enabled without url")
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q", config.Metrics.Path)
	}

	if config.Batch.WorkerCount <= 0 || config.Batch.BatchSize <= 0 {
		return fmt.Errorf("invalid batch settings: %d workers, batch size %d", config.Batch.WorkerCount, config.Batch.BatchSize)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Reloaded
// configs that fail to decode or validate are reported to onError and
// otherwise ignored.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := l.unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	l.v.WatchConfig()
}
