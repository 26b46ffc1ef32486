package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/observability"
)

// EventSubscriber is the slice of the event bus the relay needs.
type EventSubscriber interface {
	Subscribe(ctx context.Context, tables []string, fn func(events.Event)) (func(), error)
}

// NotificationCreator decouples the relay from the full service for tests.
type NotificationCreator interface {
	Create(ctx context.Context, creatorRole string, in CreateNotificationInput) (*domain.Notification, error)
}

// Relay bridges table-level insert events to notification consumers. Contact
// messages and newsletter signups are synthesized into notification rows;
// notification inserts themselves fan out to local subscribers. A synthesized
// notification comes back through the notifications channel, so synthesis
// handlers never fan out directly, so each notification is delivered exactly
// once.
type Relay struct {
	bus     EventSubscriber
	creator NotificationCreator
	logger  *slog.Logger

	mu          sync.Mutex
	subs        map[int]func(domain.Notification)
	nextID      int
	unsubscribe func()
}

func NewRelay(bus EventSubscriber, creator NotificationCreator, logger *slog.Logger) *Relay {
	return &Relay{bus: bus, creator: creator, logger: logger, subs: make(map[int]func(domain.Notification))}
}

// Start attaches the relay to the event bus. Calling Start twice is a no-op.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.unsubscribe != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	tables := []string{events.TableNotifications, events.TableContactMessages, events.TableRegistrations}
	unsub, err := r.bus.Subscribe(ctx, tables, func(ev events.Event) {
		r.handle(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}
	r.mu.Lock()
	r.unsubscribe = unsub
	r.mu.Unlock()
	return nil
}

// Stop detaches from the bus and drops local subscribers.
func (r *Relay) Stop() {
	r.mu.Lock()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.subs = make(map[int]func(domain.Notification))
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Subscribe registers fn for every relayed notification. The returned
// function removes the subscription.
func (r *Relay) Subscribe(fn func(domain.Notification)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Relay) handle(ctx context.Context, ev events.Event) {
	if ev.Type != "INSERT" {
		return
	}
	switch ev.Table {
	case events.TableNotifications:
		var n domain.Notification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			observability.RecordNotificationEvent(ctx, "relay", "decode_error")
			r.logger.Warn("relay: bad notification payload", "error", err)
			return
		}
		r.fanout(ctx, n)
	case events.TableContactMessages:
		var m domain.ContactMessage
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			observability.RecordNotificationEvent(ctx, "relay", "decode_error")
			r.logger.Warn("relay: bad contact payload", "error", err)
			return
		}
		r.synthesize(ctx, CreateNotificationInput{
			Title:       "New contact message",
			Message:     fmt.Sprintf("%s <%s>: %s", m.Name, m.Email, m.Subject),
			Type:        domain.NotificationContact,
			Priority:    domain.PriorityHigh,
			IsGlobal:    true,
			ActionURL:   "/admin/messages",
			ActionLabel: "View message",
		})
	case events.TableRegistrations:
		var sub domain.NewsletterSubscriber
		if err := json.Unmarshal(ev.Payload, &sub); err != nil {
			observability.RecordNotificationEvent(ctx, "relay", "decode_error")
			r.logger.Warn("relay: bad registration payload", "error", err)
			return
		}
		r.synthesize(ctx, CreateNotificationInput{
			Title:    "New newsletter subscriber",
			Message:  sub.Email,
			Type:     domain.NotificationInfo,
			Priority: domain.PriorityNormal,
			IsGlobal: true,
		})
	}
}

func (r *Relay) synthesize(ctx context.Context, in CreateNotificationInput) {
	if _, err := r.creator.Create(ctx, domain.RoleAdmin, in); err != nil {
		observability.RecordNotificationEvent(ctx, "relay", "synthesize_error")
		r.logger.Warn("relay: synthesize failed", "type", in.Type, "error", err)
	}
}

func (r *Relay) fanout(ctx context.Context, n domain.Notification) {
	r.mu.Lock()
	fns := make([]func(domain.Notification), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
	observability.RecordNotificationEvent(ctx, "relay", "delivered")
}
