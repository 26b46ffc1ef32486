// Package events carries insert notifications between writers and the
// notification relay over redis pub/sub channels, one channel per table.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Table names announced on the stream.
const (
	TableNotifications   = "notifications"
	TableContactMessages = "contact_messages"
	TableRegistrations   = "newsletter_subscribers"
)

// Event is one observed change. Only INSERT events are published.
type Event struct {
	Type    string          `json:"type"`
	Table   string          `json:"table"`
	Payload json.RawMessage `json:"payload"`
}

type Bus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

func NewBus(client redis.UniversalClient, prefix string, logger *slog.Logger) *Bus {
	if prefix == "" {
		prefix = "events"
	}
	return &Bus{client: client, prefix: prefix, logger: logger}
}

func (b *Bus) channel(table string) string {
	return b.prefix + ":events:" + table
}

// PublishInsert announces a new row on the table's channel. Subscribers not
// connected at publish time never see the event; there is no replay.
func (b *Bus) PublishInsert(ctx context.Context, table string, payload any) error {
	if b.client == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	event, err := json.Marshal(Event{Type: "INSERT", Table: table, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel(table), event).Err()
}

// Subscribe delivers events for the given tables to fn on a dedicated
// goroutine. The returned function releases the channel subscription and must
// be called on teardown.
func (b *Bus) Subscribe(ctx context.Context, tables []string, fn func(Event)) (func(), error) {
	if b.client == nil {
		return func() {}, nil
	}
	channels := make([]string, len(tables))
	for i, table := range tables {
		channels[i] = b.channel(table)
	}
	sub := b.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to change stream: %w", err)
	}

	go func() {
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			fn(event)
		}
	}()

	return func() { _ = sub.Close() }, nil
}
