package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus is a Bus backed by a NATS server, for sharing knowledge events
// across processes. Subjects and wildcard semantics match the in-memory
// bus because both follow NATS conventions.
type NATSBus struct {
	conn *nats.Conn
}

// ConnectNATS connects to a NATS server and returns a bus over it.
func ConnectNATS(cfg Config) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultConfig().URL
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}

	return &NATSBus{conn: conn}, nil
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	if b.conn.IsClosed() {
		return ErrClosed
	}
	return b.conn.Publish(subject, data)
}

func (b *NATSBus) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(&Message{
			Subject: m.Subject,
			Data:    m.Data,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	return &natsSubscription{sub: sub}, nil
}

// Close drains the connection so in-flight messages are delivered
// before shutdown.
func (b *NATSBus) Close() error {
	if b.conn.IsClosed() {
		return ErrClosed
	}
	return b.conn.Drain()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Subject() string {
	return s.sub.Subject
}
