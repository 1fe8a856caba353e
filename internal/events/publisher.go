package events

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/portly/internal/logger"
)

// LoggingPublisher is the engine's event bus. The executor and sequencer
// publish task and pipeline transitions from their worker goroutines; each
// one is written to the debug log and then handed to the front-end
// subscribers on the publishing goroutine.
type LoggingPublisher struct {
	log *logger.Logger

	mu          sync.RWMutex
	subscribers []*subscriber
}

// subscriber is one registered handler. Wildcard matches every event.
type subscriber struct {
	eventType string
	handler   Handler
}

func (s *subscriber) matches(eventType string) bool {
	return s.eventType == Wildcard || s.eventType == eventType
}

// NewLoggingPublisher creates an event bus logging through log. A nil log
// discards the debug trail.
func NewLoggingPublisher(log *logger.Logger) *LoggingPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingPublisher{log: log}
}

// Publish logs event and runs every matching handler in the order they
// subscribed. Handler errors and panics are logged, never returned.
func (p *LoggingPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || event == nil {
		return nil
	}
	eventType := event.EventType()

	p.mu.RLock()
	var matched []*subscriber
	for _, sub := range p.subscribers {
		if sub.matches(eventType) {
			matched = append(matched, sub)
		}
	}
	p.mu.RUnlock()

	p.log.Debug("engine event", eventFields(event)...)

	for _, sub := range matched {
		if err := p.deliver(ctx, sub, event); err != nil {
			p.log.Warn("event handler failed", "event_type", eventType, "error", err)
		}
	}
	return nil
}

func (p *LoggingPublisher) deliver(ctx context.Context, sub *subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

// Subscribe registers handler for eventType, or for every event with
// Wildcard. Unsubscribe may be called more than once.
func (p *LoggingPublisher) Subscribe(eventType string, handler Handler) (Subscription, error) {
	if p == nil || handler == nil {
		return noopSubscription{}, nil
	}
	sub := &subscriber{eventType: eventType, handler: handler}

	p.mu.Lock()
	p.subscribers = append(p.subscribers, sub)
	p.mu.Unlock()

	return &subscription{remove: func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subscribers = slices.DeleteFunc(p.subscribers, func(s *subscriber) bool { return s == sub })
	}}, nil
}

// eventFields flattens an event into logger key/value pairs. Map payloads,
// which is what the engine publishes, become one field per key.
func eventFields(event Event) []any {
	fields := []any{"event_type", event.EventType()}
	switch payload := event.Payload().(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(payload))
		for key := range payload {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fields = append(fields, key, payload[key])
		}
	default:
		fields = append(fields, "payload", payload)
	}
	return fields
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

type subscription struct {
	once   sync.Once
	remove func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.remove)
}

var _ Publisher = (*LoggingPublisher)(nil)
