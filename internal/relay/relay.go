// Package relay mirrors session events onto a NATS subject per session and
// event type, so tools outside the web UI (scoreboards, bots) can follow a
// session without a websocket.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/frankferrari/lanomat/internal/logger"
	"github.com/frankferrari/lanomat/internal/services"
)

// DefaultSubjectPrefix is the root of every published subject
const DefaultSubjectPrefix = "lanomat.sessions"

// Config holds the NATS connection settings
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the connection defaults
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher is the part of *nats.Conn the relay needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect opens a NATS connection that logs disconnects and reconnects
func Connect(cfg Config, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("lanomat"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Event is the JSON body of every published message
type Event struct {
	SessionID int64  `json:"session_id"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	SentAt    int64  `json:"sent_at"`
}

// NATSPublisher implements services.Broadcaster on top of a Publisher
type NATSPublisher struct {
	log    logger.Logger
	pub    Publisher
	prefix string
	clock  clockwork.Clock
}

// NewNATSPublisher creates a publisher. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATSPublisher(log logger.Logger, pub Publisher, prefix string, clock clockwork.Clock) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{log: log, pub: pub, prefix: prefix, clock: clock}
}

// Subject returns the subject events of this type for this session go to
func (p *NATSPublisher) Subject(sessionID int64, msgType string) string {
	return fmt.Sprintf("%s.%d.%s", p.prefix, sessionID, msgType)
}

// BroadcastToSession publishes the event. Failures are logged and dropped;
// the websocket fan-out does not depend on the bus.
func (p *NATSPublisher) BroadcastToSession(sessionID int64, msgType string, payload any) {
	data, err := json.Marshal(Event{
		SessionID: sessionID,
		Type:      msgType,
		Payload:   payload,
		SentAt:    p.clock.Now().UnixMilli(),
	})
	if err != nil {
		p.log.Error("Failed to encode relay event", "type", msgType, "error", err)
		return
	}
	subject := p.Subject(sessionID, msgType)
	if err := p.pub.Publish(subject, data); err != nil {
		p.log.Warn("Failed to publish relay event", "subject", subject, "error", err)
	}
}

// Fanout delivers every event to each broadcaster in order
type Fanout []services.Broadcaster

// BroadcastToSession implements services.Broadcaster
func (f Fanout) BroadcastToSession(sessionID int64, msgType string, payload any) {
	for _, b := range f {
		b.BroadcastToSession(sessionID, msgType, payload)
	}
}

var (
	_ services.Broadcaster = (*NATSPublisher)(nil)
	_ services.Broadcaster = Fanout(nil)
	_ Publisher            = (*nats.Conn)(nil)
)
