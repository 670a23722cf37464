package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/halalchain/halalmap/internal/core/ports"
)

// Subscriber implements ports.EventSubscriber. Every API instance receives
// every change so it can refresh the map sessions it hosts, so the
// subscription is a plain fan-out one rather than a durable consumer.
type Subscriber struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn}, nil
}

// SubscribeRestaurantChanges invokes handler for every change event until
// ctx is cancelled.
func (s *Subscriber) SubscribeRestaurantChanges(ctx context.Context, handler func(ctx context.Context, change ports.RestaurantChange) error) error {
	sub, err := s.conn.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		var change ports.RestaurantChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			slog.Warn("malformed restaurant change", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, change); err != nil {
			slog.Warn("handle restaurant change", "restaurant_id", change.RestaurantID, "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()
	_ = s.conn.Drain()
}

// Ping round-trips to the server.
func (s *Subscriber) Ping(ctx context.Context) error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("nats %s", s.conn.Status())
	}
	return s.conn.FlushWithContext(ctx)
}
