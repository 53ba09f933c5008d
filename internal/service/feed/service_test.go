package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/repository"
	"github.com/nepselabs/feed-service/internal/service/alert"
	"github.com/shopspring/decimal"
)

type memorySnapshotStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	sets  int
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{blobs: make(map[string][]byte)}
}

func (s *memorySnapshotStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[key]
	return blob, ok, nil
}

func (s *memorySnapshotStore) Set(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = blob
	s.sets++
	return nil
}

func (s *memorySnapshotStore) setCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func envelope(t *testing.T, msgType entity.StreamMessageType, payload any) []byte {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(entity.StreamEnvelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	return raw
}

func TestStreamMessageDispatch(t *testing.T) {
	s := NewService(testFeedConfig(), nil, nil, WithGeneratorSeed(1))
	ctx := context.Background()

	s.handleStreamMessage(ctx, envelope(t, entity.StreamMessageQuote, entity.Quote{
		Symbol: "nabil",
		Price:  decimal.NewFromInt(1510),
	}))

	q, ok := s.GetQuote("NABIL")
	if !ok {
		t.Fatal("quote envelope should land in the cache")
	}
	if !q.Price.Equal(decimal.NewFromInt(1510)) {
		t.Fatalf("cached price = %s, want 1510", q.Price)
	}
	if q.Timestamp.IsZero() {
		t.Fatal("missing quote timestamp should be backfilled")
	}

	s.handleStreamMessage(ctx, envelope(t, entity.StreamMessageTrade, entity.Trade{
		ID:     "t-1",
		Symbol: "nabil",
		Price:  decimal.NewFromInt(1511),
	}))
	if trades := s.GetTrades("NABIL", 0); len(trades) != 1 {
		t.Fatalf("expected 1 cached trade, got %d", len(trades))
	}

	// Unknown types and malformed payloads are dropped without side effects.
	s.handleStreamMessage(ctx, []byte(`{"type":"halt","data":{}}`))
	s.handleStreamMessage(ctx, []byte(`{"type":"quote","data":"not-an-object"}`))
	s.handleStreamMessage(ctx, []byte(`not json at all`))

	if trades := s.GetTrades("NABIL", 0); len(trades) != 1 {
		t.Fatal("dropped messages must not mutate the cache")
	}
}

func TestIngestPublishesAfterCacheWrite(t *testing.T) {
	s := NewService(testFeedConfig(), nil, nil)

	var observed []decimal.Decimal
	s.Subscribe(entity.FeedEventQuote, "NABIL", func(evt Event) {
		// The cache must already hold the value being announced.
		cached, ok := s.GetQuote("NABIL")
		if !ok {
			t.Error("subscriber ran before the cache write")
			return
		}
		observed = append(observed, cached.Price)
	})

	var mirrored int
	s.mirror = func(entity.Quote) { mirrored++ }

	if !s.ingestQuote(context.Background(), entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1500)}) {
		t.Fatal("first update must be admitted")
	}

	if len(observed) != 1 || !observed[0].Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("subscriber observed %v, want [1500]", observed)
	}
	if mirrored != 1 {
		t.Fatalf("mirror hook ran %d times, want 1", mirrored)
	}
}

func TestIngestThrottlesBursts(t *testing.T) {
	cfg := testFeedConfig()
	cfg.MaxUpdatesPerSecond = 1
	s := NewService(cfg, nil, nil)
	ctx := context.Background()

	if !s.ingestQuote(ctx, entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1500)}) {
		t.Fatal("first update must be admitted")
	}
	if s.ingestQuote(ctx, entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1501)}) {
		t.Fatal("burst update inside the window must be deferred")
	}

	if buffered := s.BufferedQuotes("NABIL"); len(buffered) != 1 {
		t.Fatalf("expected 1 buffered update, got %d", len(buffered))
	}

	// Latest accepted value wins in the cache.
	q, _ := s.GetQuote("NABIL")
	if !q.Price.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("cache should keep the admitted price, got %s", q.Price)
	}
}

func TestQuoteSnapshotWritesAreDebounced(t *testing.T) {
	store := newMemorySnapshotStore()
	s := NewService(testFeedConfig(), nil, repository.NewFeedSnapshotRepository(store))
	ctx := context.Background()

	s.ingestQuote(ctx, entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1500)})
	s.ingestQuote(ctx, entity.Quote{Symbol: "NHPC", Price: decimal.NewFromInt(310)})
	s.ingestQuote(ctx, entity.Quote{Symbol: "NICA", Price: decimal.NewFromInt(905)})

	if got := store.setCalls(); got != 1 {
		t.Fatalf("expected a single snapshot write for the burst, got %d", got)
	}

	// Rewind the window; the next accepted update snapshots again.
	s.snapMu.Lock()
	s.lastSnapshot = time.Now().Add(-quoteSnapshotInterval)
	s.snapMu.Unlock()

	s.ingestQuote(ctx, entity.Quote{Symbol: "HDL", Price: decimal.NewFromInt(2200)})

	if got := store.setCalls(); got != 2 {
		t.Fatalf("expected a second snapshot write after the interval, got %d", got)
	}
}

func TestAlertTriggerReachesBus(t *testing.T) {
	s := NewService(testFeedConfig(), nil, nil)
	ctx := context.Background()

	created, err := s.CreateAlert(ctx, alert.CreateSpec{
		Symbol: "NABIL",
		Type:   entity.AlertTypePrice,
		Condition: entity.AlertCondition{
			Field:    entity.AlertFieldPrice,
			Operator: entity.AlertOperatorAbove,
			Value:    decimal.NewFromInt(1500),
		},
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	var triggers []entity.AlertTrigger
	s.Subscribe(entity.FeedEventAlert, "NABIL", func(evt Event) {
		trigger, ok := evt.Payload.(entity.AlertTrigger)
		if !ok {
			t.Errorf("alert event payload has type %T", evt.Payload)
			return
		}
		triggers = append(triggers, trigger)
	})

	s.ingestQuote(ctx, entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1505)})

	if len(triggers) != 1 {
		t.Fatalf("expected 1 alert trigger on the bus, got %d", len(triggers))
	}
	if triggers[0].Alert.ID != created.ID {
		t.Fatalf("trigger carries alert %s, want %s", triggers[0].Alert.ID, created.ID)
	}

	alerts := s.GetAlerts()
	if len(alerts) != 1 || alerts[0].IsActive || !alerts[0].TriggeredAt.Valid {
		t.Fatalf("price alert should be spent after firing, got %+v", alerts)
	}
}

func TestRestoreWarmStart(t *testing.T) {
	ctx := context.Background()
	snapshots := repository.NewFeedSnapshotRepository(newMemorySnapshotStore())

	err := snapshots.SaveQuotes(ctx, []entity.Quote{
		{Symbol: "NABIL", Price: decimal.NewFromInt(1500), Timestamp: time.Now()},
		{Symbol: "NHPC", Price: decimal.NewFromInt(310), Timestamp: time.Now().Add(-48 * time.Hour)},
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("SaveQuotes: %v", err)
	}
	err = snapshots.SaveAlerts(ctx, []entity.MarketAlert{{
		ID:       "a-1",
		Symbol:   "NABIL",
		Type:     entity.AlertTypePrice,
		IsActive: true,
		Condition: entity.AlertCondition{
			Field:    entity.AlertFieldPrice,
			Operator: entity.AlertOperatorAbove,
			Value:    decimal.NewFromInt(1600),
		},
	}})
	if err != nil {
		t.Fatalf("SaveAlerts: %v", err)
	}
	if err := snapshots.SaveSymbols(ctx, []string{"nabil"}); err != nil {
		t.Fatalf("SaveSymbols: %v", err)
	}

	s := NewService(testFeedConfig(), nil, snapshots)
	s.Restore(ctx)

	if _, ok := s.GetQuote("NABIL"); !ok {
		t.Fatal("fresh quote should be restored")
	}
	if _, ok := s.GetQuote("NHPC"); ok {
		t.Fatal("stale quote beyond max age should be pruned on restore")
	}
	if alerts := s.GetAlerts(); len(alerts) != 1 || alerts[0].ID != "a-1" {
		t.Fatalf("expected alert a-1 restored, got %+v", alerts)
	}
	if symbols := s.SubscribedSymbols(); len(symbols) != 1 || symbols[0] != "NABIL" {
		t.Fatalf("expected [NABIL] restored, got %v", symbols)
	}
}

func TestPollingModePopulatesCache(t *testing.T) {
	failDial := func(context.Context, string, time.Duration) (streamConn, error) {
		return nil, errors.New("dial timeout")
	}

	s := NewService(testFeedConfig(), nil, nil, WithDialer(failDial), WithGeneratorSeed(42))
	defer s.Cleanup()

	ctx := context.Background()
	s.SubscribeSymbol(ctx, "NABIL")

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := s.GetConnectionStatus().ConnectionType; got != entity.ConnectionTypePolling {
		t.Fatalf("expected polling mode, got %s", got)
	}

	waitFor(t, time.Second, func() bool {
		_, hasQuote := s.GetQuote("NABIL")
		_, hasBook := s.GetOrderBook("NABIL")
		_, hasDepth := s.GetMarketDepth("NABIL")
		return hasQuote && hasBook && hasDepth
	})

	// Trades and sentiment ride the slower modulus schedule.
	waitFor(t, time.Second, func() bool {
		_, hasSentiment := s.GetMarketSentiment("NABIL")
		_, hasMarket := s.GetMarketSentiment("")
		return len(s.GetTrades("NABIL", 0)) > 0 && hasSentiment && hasMarket
	})
}

func TestSymbolControlMessagesWhenLive(t *testing.T) {
	conn := newFakeStreamConn()
	dial := func(context.Context, string, time.Duration) (streamConn, error) {
		return conn, nil
	}

	s := NewService(testFeedConfig(), nil, nil, WithDialer(dial))
	defer s.Cleanup()

	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s.SubscribeSymbol(ctx, "nhpc")
	s.SubscribeSymbol(ctx, "NHPC") // duplicate, must not resend
	s.UnsubscribeSymbol(ctx, "nhpc")

	controls := conn.writtenControls()
	if len(controls) != 2 {
		t.Fatalf("expected subscribe then unsubscribe, got %d messages: %+v", len(controls), controls)
	}
	if controls[0].Type != entity.StreamControlSubscribe || controls[0].Symbol != "NHPC" {
		t.Fatalf("first control = %+v, want subscribe NHPC", controls[0])
	}
	if controls[1].Type != entity.StreamControlUnsubscribe || controls[1].Symbol != "NHPC" {
		t.Fatalf("second control = %+v, want unsubscribe NHPC", controls[1])
	}
}

func TestCleanupResetsEverything(t *testing.T) {
	s := NewService(testFeedConfig(), nil, nil)
	ctx := context.Background()

	s.SubscribeSymbol(ctx, "NABIL")
	s.ingestQuote(ctx, entity.Quote{Symbol: "NABIL", Price: decimal.NewFromInt(1500)})
	s.Subscribe(entity.FeedEventQuote, "", func(Event) {})

	s.Cleanup()

	if _, ok := s.GetQuote("NABIL"); ok {
		t.Fatal("cache survived Cleanup")
	}
	if symbols := s.SubscribedSymbols(); len(symbols) != 0 {
		t.Fatalf("symbol set survived Cleanup: %v", symbols)
	}
	if got := s.GetConnectionStatus().ConnectionType; got != entity.ConnectionTypeOffline {
		t.Fatalf("expected offline after Cleanup, got %s", got)
	}
}
