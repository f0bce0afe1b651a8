package services

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
)

type Event struct {
	Topic     string // aggregate id: campaign, task or bot
	Type      EventType
	Kind      domain.EventKind
	Data      string // JSON payload or raw text
	Timestamp int64
}

// EventBus fans events out to per-topic and global subscribers. Publishing
// never blocks: a full subscriber channel drops the event.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
	global []chan Event
}

var _ ports.EventPublisher = (*EventBus)(nil)

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one topic.
func (b *EventBus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[topic] = append(b.subs[topic], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[topic]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[topic] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}

	return ch, unsub
}

// SubscribeGlobal receives every event regardless of topic.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 256)
	b.global = append(b.global, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.global {
			if sub == ch {
				close(ch)
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Topic] {
		b.send(ch, e)
	}
	for _, ch := range b.global {
		b.send(ch, e)
	}
}

func (b *EventBus) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "topic", e.Topic, "kind", e.Kind)
	}
}

// PublishDomain converts entity events into bus events.
func (b *EventBus) PublishDomain(events ...domain.Event) {
	for _, de := range events {
		data, err := json.Marshal(de)
		if err != nil {
			b.logger.Error("failed to encode domain event", "kind", de.Kind, "error", err)
			continue
		}
		typ := EventTypeStatus
		if de.Kind == domain.EventBotSnapshot {
			typ = EventTypeLog
		}
		b.Publish(Event{
			Topic:     de.AggregateID,
			Type:      typ,
			Kind:      de.Kind,
			Data:      string(data),
			Timestamp: de.OccurredAt.UnixMilli(),
		})
	}
}

// nopPublisher is used when no publisher is injected.
type nopPublisher struct{}

func (nopPublisher) PublishDomain(...domain.Event) {}
