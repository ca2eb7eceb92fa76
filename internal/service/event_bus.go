package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"fundledger/internal/domain"
	"fundledger/internal/models"
	"fundledger/internal/repository"
)

// Subscriber receives ledger events. Delivery is at-least-once: the same
// event (same ID) may arrive more than once and handlers must tolerate that.
type Subscriber interface {
	Handle(ctx context.Context, ev domain.Event) error
}

type SubscriberFunc func(ctx context.Context, ev domain.Event) error

func (f SubscriberFunc) Handle(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }

type subscription struct {
	name  string
	types map[string]bool // empty = every type
	sub   Subscriber
}

func (s subscription) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// EventBus fans committed outbox events out to subscribers. Publish hands
// events to the dispatch loop; anything not acknowledged (queue full, a
// subscriber failed, process crashed) stays undelivered in the outbox and
// is picked up again by the periodic sweep in Run.
type EventBus struct {
	outbox *repository.OutboxRepository
	queue  chan models.OutboxEvent

	mu   sync.RWMutex
	subs []subscription
}

func NewEventBus(outbox *repository.OutboxRepository, queueSize int) *EventBus {
	if queueSize < 1 {
		queueSize = 256
	}
	return &EventBus{outbox: outbox, queue: make(chan models.OutboxEvent, queueSize)}
}

// Subscribe registers s for the given event types (none = all).
func (b *EventBus) Subscribe(name string, s Subscriber, types ...string) error {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		if !isEventType(t) {
			return domain.Invalid("event_types", "unknown event type %q", t)
		}
		set[t] = true
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{name: name, types: set, sub: s})
	b.mu.Unlock()
	return nil
}

// Publish queues committed events for delivery without blocking the caller.
func (b *EventBus) Publish(events []models.OutboxEvent) {
	for _, ev := range events {
		select {
		case b.queue <- ev:
		default:
			log.Printf("[events] queue full, %s %s left for redispatch", ev.Type, ev.EventID)
		}
	}
}

// Run delivers queued events and every interval re-sends outbox rows older
// than one interval that were never acknowledged. It returns when ctx is done.
func (b *EventBus) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			_ = b.Deliver(ctx, ev)
		case <-ticker.C:
			b.redispatch(ctx, interval)
		}
	}
}

func (b *EventBus) redispatch(ctx context.Context, age time.Duration) {
	now := time.Now()
	rows, err := b.outbox.ListUndelivered(now.Add(-age), now, 100)
	if err != nil {
		log.Printf("[events] outbox scan failed: %v", err)
		return
	}
	for _, ev := range rows {
		if ctx.Err() != nil {
			return
		}
		_ = b.Deliver(ctx, ev)
	}
}

// Deliver hands one event to every interested subscriber and records the
// outcome in the outbox. A single failing subscriber leaves the event
// undelivered so the whole event is retried.
func (b *EventBus) Deliver(ctx context.Context, row models.OutboxEvent) error {
	ev := ToEvent(row)
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var failures []string
	for _, s := range subs {
		if !s.wants(ev.Type) {
			continue
		}
		if err := s.sub.Handle(ctx, ev); err != nil {
			log.Printf("[events] %s failed on %s %s: %v", s.name, ev.Type, ev.ID, err)
			failures = append(failures, fmt.Sprintf("%s: %v", s.name, err))
		}
	}
	if len(failures) > 0 {
		msg := strings.Join(failures, "; ")
		if err := b.outbox.MarkFailed(row.EventID, msg, time.Now().Add(RetryBackoff(row.Attempts+1))); err != nil {
			log.Printf("[events] mark failed %s: %v", row.EventID, err)
		}
		return fmt.Errorf("delivering %s: %s", row.EventID, msg)
	}
	if err := b.outbox.MarkDelivered(row.EventID, time.Now()); err != nil {
		log.Printf("[events] mark delivered %s: %v", row.EventID, err)
		return err
	}
	return nil
}

// RetryBackoff is the wait after the n-th failed delivery: 1s doubling up to
// one hour. Events are never dropped.
func RetryBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 12 {
		return time.Hour
	}
	d := time.Second << (n - 1)
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

// ToEvent converts an outbox row to the subscriber-facing envelope.
func ToEvent(row models.OutboxEvent) domain.Event {
	data := json.RawMessage(row.Payload)
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return domain.Event{
		ID:         row.EventID,
		Type:       row.Type,
		ProjectID:  row.ProjectID,
		OccurredAt: row.OccurredAt,
		Data:       data,
	}
}

func isEventType(t string) bool {
	for _, known := range domain.EventTypes {
		if known == t {
			return true
		}
	}
	return false
}
