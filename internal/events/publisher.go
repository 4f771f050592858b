// Package events publishes extraction events to NATS for downstream
// consumers that cannot hold a dashboard WebSocket open.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/metrics"
	"github.com/raaihank/parsed-text/internal/websocket"
)

// DefaultSubject is used when no subject is configured
const DefaultSubject = "parsedtext.extractions"

// Config contains NATS publisher configuration
type Config struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
	Name    string `yaml:"name" mapstructure:"name"`
}

// Publisher sends extraction events to a NATS subject
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Connect dials NATS and returns a publisher
func Connect(config *Config, logger *zap.Logger) (*Publisher, error) {
	name := config.Name
	if name == "" {
		name = "parsed-text"
	}

	nc, err := nats.Connect(config.URL,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return NewPublisher(nc, config.Subject, logger), nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn, subject string, logger *zap.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}

	logger.Info("Event publisher initialized", zap.String("subject", subject))

	return &Publisher{
		nc:      nc,
		subject: subject,
		logger:  logger,
		metrics: metrics.New(),
	}
}

// Subject returns the subject events are published on
func (p *Publisher) Subject() string {
	return p.subject
}

// Publish sends an event. Publishing is asynchronous in the NATS client,
// so failures here are local (closed connection, oversized payload).
func (p *Publisher) Publish(event websocket.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
