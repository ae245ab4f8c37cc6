package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/pkg/logger"
)

// Event is the envelope carried on every subject.
type Event struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, event Event) error

// Bus publishes and consumes domain events over NATS.
type Bus struct {
	conn *nats.Conn
}

// Connect dials NATS with reconnection enabled.
func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Get().Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Get().Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Publish marshals payload and emits it on subject with the given event type.
func (b *Bus) Publish(ctx context.Context, subject, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	event := Event{Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe consumes subject in the named queue group so that only one
// instance in the group handles each message. Handler errors are logged,
// not retried; producers that need delivery guarantees persist state first.
func (b *Bus) Subscribe(ctx context.Context, subject, queue string, handler Handler) (*nats.Subscription, error) {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Get().Error("malformed event",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if err := handler(ctx, event); err != nil {
			logger.Get().Error("event handler failed",
				zap.String("subject", msg.Subject),
				zap.String("type", event.Type),
				zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains in-flight messages and closes the connection.
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		logger.Get().Warn("nats drain", zap.Error(err))
	}
	b.conn.Close()
}
