package events

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/websocket"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)

	pub, err := Connect(&Config{URL: server.ClientURL()}, zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()
	assert.Equal(t, DefaultSubject, pub.Subject())

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe(DefaultSubject, msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	require.NoError(t, pub.Publish(websocket.Event{
		Type:      websocket.EventTypeExtraction,
		Timestamp: time.Now(),
		RequestID: "req-1",
		Data:      websocket.ExtractionEvent{RequestID: "req-1", Matched: 2, ByDescriptor: map[string]int{"url": 2}},
	}))

	select {
	case msg := <-msgs:
		var decoded struct {
			Type      string `json:"type"`
			RequestID string `json:"request_id"`
			Data      struct {
				Matched      int            `json:"matched"`
				ByDescriptor map[string]int `json:"by_descriptor"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &decoded))
		assert.Equal(t, "extraction", decoded.Type)
		assert.Equal(t, "req-1", decoded.RequestID)
		assert.Equal(t, 2, decoded.Data.Matched)
		assert.Equal(t, map[string]int{"url": 2}, decoded.Data.ByDescriptor)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestPublisher_CustomSubject(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub := NewPublisher(nc, "custom.events", zap.NewNop())
	assert.Equal(t, "custom.events", pub.Subject())
}

func TestPublisher_ClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	pub := NewPublisher(nc, "", zap.NewNop())
	nc.Close()

	err = pub.Publish(websocket.Event{Type: websocket.EventTypeExtraction})
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(&Config{URL: "nats://127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}
