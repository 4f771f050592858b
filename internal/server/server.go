// Package server exposes the extraction engine over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/cache"
	"github.com/raaihank/parsed-text/internal/config"
	"github.com/raaihank/parsed-text/internal/logger"
	"github.com/raaihank/parsed-text/internal/metrics"
	"github.com/raaihank/parsed-text/internal/store"
	"github.com/raaihank/parsed-text/internal/web"
	"github.com/raaihank/parsed-text/internal/websocket"
)

const version = "0.1.0"

// ResultCache caches extraction responses
type ResultCache interface {
	Get(ctx context.Context, key string) (*cache.CachedResult, bool)
	Store(ctx context.Context, key string, result *cache.CachedResult) error
}

// SegmentationStore persists extraction results
type SegmentationStore interface {
	Insert(ctx context.Context, record *store.Record) (bool, error)
}

// EventPublisher forwards extraction events outside the process
type EventPublisher interface {
	Publish(event websocket.Event) error
}

// Server represents the extraction HTTP server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	router  *mux.Router
	server  *http.Server
	wsHub   *websocket.Hub
	limiter *rateLimiter
	metrics *metrics.Metrics
	cache   ResultCache
	store   SegmentationStore
	events  EventPublisher

	mu    sync.RWMutex
	parse config.ParseConfig
}

// Option configures optional server dependencies
type Option func(*Server)

// WithCache enables result caching
func WithCache(c ResultCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithStore enables persistence of extraction results
func WithStore(st SegmentationStore) Option {
	return func(s *Server) { s.store = st }
}

// WithPublisher forwards extraction events to an external broker
func WithPublisher(p EventPublisher) Option {
	return func(s *Server) { s.events = p }
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	wsCfg := cfg.WebSocket
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastExtractions: wsCfg.Events.BroadcastExtractions,
		BroadcastConnections: wsCfg.Events.BroadcastConnections,
		ReadBufferSize:       wsCfg.ReadBufferSize,
		WriteBufferSize:      wsCfg.WriteBufferSize,
		AllowedOrigins:       wsCfg.AllowedOrigins,
		Username:             wsCfg.Username,
		Password:             wsCfg.Password,
	}, log.WithComponent("websocket").Logger)

	server := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		router:  mux.NewRouter(),
		wsHub:   wsHub,
		metrics: metrics.New(),
		parse:   cfg.Parse,
	}

	if cfg.Server.RateLimit.Enabled {
		server.limiter = newRateLimiter(cfg.Server.RateLimit.RequestsPerMin, cfg.Server.RateLimit.Burst)
	}

	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/patterns", s.handlePatterns).Methods(http.MethodGet)
	api.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	api.HandleFunc("/render", s.handleRender).Methods(http.MethodPost)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the WebSocket hub and the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting parsed-text server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("default_options", len(s.parseConfig().Options)),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("store", s.store != nil),
		zap.Bool("nats", s.events != nil),
	)

	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and the hub
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping parsed-text server")
	s.wsHub.Stop()
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.server.Shutdown(ctx)
}

// UpdateParseConfig swaps the defaults used by requests without options
func (s *Server) UpdateParseConfig(parse config.ParseConfig) {
	s.mu.Lock()
	s.parse = parse
	s.mu.Unlock()

	s.logger.Info("Default parse options reloaded",
		zap.Int("options", len(parse.Options)),
		zap.String("platform", parse.Platform))
}

func (s *Server) parseConfig() config.ParseConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parse
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
