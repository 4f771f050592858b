package config

import (
	"time"

	"github.com/raaihank/parsed-text/internal/parsedtext"
	"github.com/raaihank/parsed-text/internal/patterns"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Parse     ParseConfig     `yaml:"parse" mapstructure:"parse"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	NATS      NATSConfig      `yaml:"nats" mapstructure:"nats"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int             `yaml:"port" mapstructure:"port"`
	ReadTimeout      time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout     time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout      time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxTextBytes     int             `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
	MaxPatternLength int             `yaml:"max_pattern_length" mapstructure:"max_pattern_length"`
	MaxOptions       int             `yaml:"max_options" mapstructure:"max_options"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// ParseConfig holds the options applied when a request brings none
type ParseConfig struct {
	Platform string              `yaml:"platform" mapstructure:"platform"`
	Options  []parsedtext.Option `yaml:"options" mapstructure:"options"`
	Props    parsedtext.Props    `yaml:"props" mapstructure:"props"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// CacheConfig contains Redis result cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// StoreConfig contains PostgreSQL configuration for persisted segmentations
type StoreConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	Path            string   `yaml:"path" mapstructure:"path"`
	ReadBufferSize  int      `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int      `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username        string   `yaml:"username" mapstructure:"username"`
	Password        string   `yaml:"password" mapstructure:"password"`
	Events          struct {
		BroadcastExtractions bool `yaml:"broadcast_extractions" mapstructure:"broadcast_extractions"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// BatchConfig contains batch pipeline configuration
type BatchConfig struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`
	MaxTextBytes   int `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// NATSConfig contains the extraction event publisher configuration
type NATSConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxTextBytes:     1 << 20,
			MaxPatternLength: 1024,
			MaxOptions:       32,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 600,
				Burst:          50,
			},
		},
		Parse: ParseConfig{
			Platform: string(parsedtext.PlatformIOS),
			Options: []parsedtext.Option{
				{Type: patterns.TypeURL, ID: patterns.TypeURL},
				{Type: patterns.TypePhone, ID: patterns.TypePhone},
				{Type: patterns.TypeEmail, ID: patterns.TypeEmail},
			},
			Props: parsedtext.DefaultProps(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     10 * time.Minute,
			KeyPrefix:      "parsedtext",
		},
		Store: StoreConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/parsedtext?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			AllowedOrigins:  []string{"*"},
		},
		Batch: BatchConfig{
			BatchSize:      500,
			WorkerCount:    4,
			MaxTextBytes:   1 << 20,
			ProgressReport: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "parsedtext.extractions",
		},
	}
	cfg.Logging.File.Path = "logs/parsed-text.log"
	cfg.WebSocket.Events.BroadcastExtractions = true
	cfg.WebSocket.Events.BroadcastConnections = true
	return cfg
}
