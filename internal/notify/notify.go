package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"escrowline/internal/domain"
)

// Publisher fans stored notifications out after their transaction commits.
// Implementations never return errors to the engine; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification)
	Close()
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Notification) {}
func (Nop) Close()                                       {}

// Event is the JSON document published on NATS.
type Event struct {
	NotificationID string         `json:"notification_id"`
	EventType      string         `json:"event_type"`
	RecipientID    string         `json:"recipient_id"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// NATSPublisher publishes to <prefix>.<notification type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect dials NATS. The connection retries on its own if the server drops.
func Connect(url, prefix string, log zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("escrowline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("notify: nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATSPublisher(conn, prefix, log), nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "escrowline.notifications"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}
}

func (p *NATSPublisher) Subject(notificationType string) string {
	return p.prefix + "." + notificationType
}

func (p *NATSPublisher) Publish(ctx context.Context, n domain.Notification) {
	if p == nil || p.conn == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(Event{
		NotificationID: n.ID,
		EventType:      n.Type,
		RecipientID:    n.RecipientID,
		Title:          n.Title,
		Message:        n.Message,
		Payload:        n.Data,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", n.Type).Msg("notify: failed to marshal event")
		return
	}
	subject := p.Subject(n.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("notification_id", n.ID).
			Msg("notify: failed to publish (non-fatal)")
		return
	}
	p.log.Debug().Str("subject", subject).Str("recipient_id", n.RecipientID).Msg("notify: published")
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
