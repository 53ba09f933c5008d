package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/shopspring/decimal"
)

type failingInserter struct {
	calls int
}

func (f *failingInserter) Create(context.Context, *entity.QuoteHistory) error {
	f.calls++
	return errors.New("insert failed")
}

func setJetstreamRetries(t *testing.T, maxRetries int) {
	t.Helper()

	prev := config.Env
	config.Env = &config.EnvConfig{
		NatsJetstream: config.NatsJetstreamConfig{MaxRetries: maxRetries},
	}
	t.Cleanup(func() { config.Env = prev })
}

func eventMsg(t *testing.T, event entity.QuoteHistoryEvent) *nats.Msg {
	t.Helper()

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	return &nats.Msg{Data: raw}
}

func TestFailedInsertRequeuesWithIncrementedRetryCount(t *testing.T) {
	setJetstreamRetries(t, 3)

	s := NewQuoteHistoryService(nil, nil)
	s.quoteHistoryRepo = &failingInserter{}

	var requeued []*entity.QuoteHistoryEvent
	s.publish = func(subject string, event any) error {
		req, ok := event.(*entity.QuoteHistoryEvent)
		if !ok {
			t.Fatalf("requeued event has type %T", event)
		}
		requeued = append(requeued, req)
		return nil
	}

	msg := eventMsg(t, entity.QuoteHistoryEvent{
		RetryCount: 0,
		Data: entity.QuoteHistory{
			Symbol:     "NABIL",
			Price:      decimal.NewFromInt(1500),
			CapturedAt: time.Now().UTC(),
		},
	})

	if err := s.handleQuoteHistoryEvent(context.Background(), msg); err == nil {
		t.Fatal("expected insert failure to propagate")
	}
	if len(requeued) != 1 || requeued[0].RetryCount != 1 {
		t.Fatalf("expected one requeue with retry count 1, got %+v", requeued)
	}
}

func TestFailedInsertDroppedAtRetryBudget(t *testing.T) {
	setJetstreamRetries(t, 3)

	inserter := &failingInserter{}
	s := NewQuoteHistoryService(nil, nil)
	s.quoteHistoryRepo = inserter

	var published int
	s.publish = func(string, any) error {
		published++
		return nil
	}

	msg := eventMsg(t, entity.QuoteHistoryEvent{
		RetryCount: 2,
		Data: entity.QuoteHistory{
			Symbol:     "NABIL",
			Price:      decimal.NewFromInt(1500),
			CapturedAt: time.Now().UTC(),
		},
	})

	if err := s.handleQuoteHistoryEvent(context.Background(), msg); err == nil {
		t.Fatal("expected insert failure to propagate")
	}
	if inserter.calls != 1 {
		t.Fatalf("expected one insert attempt, got %d", inserter.calls)
	}
	if published != 0 {
		t.Fatalf("exhausted retry budget must not requeue, got %d publishes", published)
	}
}

func TestMalformedEventIsNotRequeued(t *testing.T) {
	setJetstreamRetries(t, 3)

	s := NewQuoteHistoryService(nil, nil)

	var published int
	s.publish = func(string, any) error {
		published++
		return nil
	}

	err := s.handleQuoteHistoryEvent(context.Background(), &nats.Msg{Data: []byte("not json")})
	if err == nil {
		t.Fatal("expected unmarshal error")
	}
	if published != 0 {
		t.Fatalf("malformed payloads must not be requeued, got %d publishes", published)
	}
}
