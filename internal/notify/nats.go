package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/CosmoTheDev/codesense/internal/config"
)

// DefaultNATSSubject is used when no subject is configured.
const DefaultNATSSubject = "codesense.events"

const (
	natsConnectTimeout = 5 * time.Second
	natsMaxReconnects  = 10
)

// NATSChannel publishes events as JSON messages. The connection is opened
// on first use and reused afterwards.
type NATSChannel struct {
	cfg config.NATSNotifyConfig

	mu   sync.Mutex
	conn *nats.Conn
}

// NewNATS creates a NATSChannel from cfg.
func NewNATS(cfg config.NATSNotifyConfig) *NATSChannel {
	if cfg.Subject == "" {
		cfg.Subject = DefaultNATSSubject
	}
	return &NATSChannel{cfg: cfg}
}

func (n *NATSChannel) Name() string       { return "nats" }
func (n *NATSChannel) IsConfigured() bool { return n.cfg.URL != "" }

// Subject returns the subject evt is published on: the configured base
// subject plus the event type.
func (n *NATSChannel) Subject(evt Event) string {
	return n.cfg.Subject + "." + evt.Type
}

func (n *NATSChannel) connect() (*nats.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}
	conn, err := nats.Connect(n.cfg.URL,
		nats.Name("codesense"),
		nats.Timeout(natsConnectTimeout),
		nats.MaxReconnects(natsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "url", n.cfg.URL, "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", n.cfg.URL, err)
	}
	n.conn = conn
	return conn, nil
}

func (n *NATSChannel) Send(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := n.connect()
	if err != nil {
		return err
	}
	b, err := json.Marshal(newPayload(evt, time.Now()))
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: n.Subject(evt),
		Data:    b,
		Header:  nats.Header{},
	}
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Event-Type", evt.Type)
	if evt.ScanID != "" {
		msg.Header.Set("Scan-Id", evt.ScanID)
	}
	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}
	return nil
}

// Close drains and closes the connection if one was opened.
func (n *NATSChannel) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		_ = n.conn.Drain()
		n.conn = nil
	}
}
