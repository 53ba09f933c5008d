package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// Event is what subscribers receive from the fan-out bus.
type Event struct {
	Kind    entity.FeedEventKind
	Symbol  string
	Payload any
}

// Handler runs on the publishing goroutine. Panics are isolated per handler.
type Handler func(evt Event)

type busSubscription struct {
	kind    entity.FeedEventKind
	symbol  string // empty = firehose for the kind
	handler Handler
}

// eventBus fans accepted updates out to registered handlers. A kind-global
// subscriber and a symbol-scoped subscriber for the same kind coexist and
// both receive a matching event.
type eventBus struct {
	mu   sync.RWMutex
	subs map[string]busSubscription
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[string]busSubscription)}
}

// Subscribe registers a handler for an event kind, optionally scoped to one
// symbol, and returns the subscription id.
func (b *eventBus) Subscribe(kind entity.FeedEventKind, symbol string, handler Handler) string {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = busSubscription{
		kind:    kind,
		symbol:  entity.NormalizeSymbol(symbol),
		handler: handler,
	}

	return id
}

func (b *eventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers the event to every matching subscriber. One panicking
// handler must not block delivery to the rest.
func (b *eventBus) Publish(evt Event) {
	evt.Symbol = entity.NormalizeSymbol(evt.Symbol)

	b.mu.RLock()
	matched := make([]busSubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kind != evt.Kind {
			continue
		}
		if sub.symbol != "" && sub.symbol != evt.Symbol {
			continue
		}
		matched = append(matched, sub)
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.deliver(sub, evt)
	}
}

func (b *eventBus) deliver(sub busSubscription, evt Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logrus.WithFields(logrus.Fields{
				"kind":   evt.Kind,
				"symbol": evt.Symbol,
				"panic":  recovered,
			}).Error("subscriber callback panicked")
		}
	}()

	sub.handler(evt)
}

func (b *eventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]busSubscription)
}
