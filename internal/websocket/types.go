package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeExtraction is emitted after every served extraction
	EventTypeExtraction EventType = "extraction"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ExtractionEvent summarizes one extraction. The text itself is never sent.
type ExtractionEvent struct {
	RequestID    string         `json:"request_id"`
	Endpoint     string         `json:"endpoint"`
	ClientIP     string         `json:"client_ip"`
	TextBytes    int            `json:"text_bytes"`
	Segments     int            `json:"segments"`
	Matched      int            `json:"matched"`
	ByDescriptor map[string]int `json:"by_descriptor,omitempty"`
	Cached       bool           `json:"cached"`
	ProcessingMS float64        `json:"processing_ms"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// subscribed is nil until the client sends a subscribe message
	subscribed map[EventType]bool
}

// NewClient creates a client without a connection, used by tests and
// in-process subscribers
func NewClient(id string, buffer int) *Client {
	return &Client{
		ID:          id,
		Send:        make(chan Event, buffer),
		ConnectedAt: time.Now(),
	}
}
