package feed

import (
	"testing"

	"github.com/nepselabs/feed-service/internal/entity"
)

func TestBusSymbolScopedDelivery(t *testing.T) {
	bus := newEventBus()

	var firehose, scoped []Event
	bus.Subscribe(entity.FeedEventQuote, "", func(evt Event) {
		firehose = append(firehose, evt)
	})
	bus.Subscribe(entity.FeedEventQuote, "nabil", func(evt Event) {
		scoped = append(scoped, evt)
	})

	bus.Publish(Event{Kind: entity.FeedEventQuote, Symbol: "NABIL"})
	bus.Publish(Event{Kind: entity.FeedEventQuote, Symbol: "NHPC"})
	bus.Publish(Event{Kind: entity.FeedEventTrade, Symbol: "NABIL"})

	if len(firehose) != 2 {
		t.Fatalf("firehose subscriber expected 2 quote events, got %d", len(firehose))
	}
	if len(scoped) != 1 || scoped[0].Symbol != "NABIL" {
		t.Fatalf("scoped subscriber expected only the NABIL event, got %+v", scoped)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := newEventBus()

	delivered := 0
	id := bus.Subscribe(entity.FeedEventTrade, "", func(Event) {
		delivered++
	})

	bus.Publish(Event{Kind: entity.FeedEventTrade})
	bus.Unsubscribe(id)
	bus.Publish(Event{Kind: entity.FeedEventTrade})

	if delivered != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", delivered)
	}
}

func TestBusIsolatesPanickingHandler(t *testing.T) {
	bus := newEventBus()

	survived := false
	bus.Subscribe(entity.FeedEventQuote, "", func(Event) {
		panic("handler bug")
	})
	bus.Subscribe(entity.FeedEventQuote, "", func(Event) {
		survived = true
	})

	bus.Publish(Event{Kind: entity.FeedEventQuote, Symbol: "NABIL"})

	if !survived {
		t.Fatal("panic in one handler blocked delivery to the rest")
	}
}

func TestBusClear(t *testing.T) {
	bus := newEventBus()

	delivered := 0
	bus.Subscribe(entity.FeedEventQuote, "", func(Event) {
		delivered++
	})

	bus.Clear()
	bus.Publish(Event{Kind: entity.FeedEventQuote})

	if delivered != 0 {
		t.Fatalf("subscription survived Clear, got %d deliveries", delivered)
	}
}
