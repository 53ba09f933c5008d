package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/repository"
	"github.com/nepselabs/feed-service/internal/service/alert"
	"github.com/nepselabs/feed-service/internal/service/session"
	"github.com/sirupsen/logrus"
)

const (
	tradeEveryNthPoll     = 5
	sentimentEveryNthPoll = 10

	// quoteSnapshotInterval bounds how often an accepted update may write
	// the full quote set through the snapshot store.
	quoteSnapshotInterval = 5 * time.Second
)

// Service is the process-wide market feed engine: it owns the connection
// manager, the in-memory cache, the rate limiter, the alert engine and the
// fan-out bus. It is constructed once at the composition root and handed to
// consumers; there is no package-level singleton.
type Service struct {
	cfg       config.FeedConfig
	cache     *marketCache
	throttle  *updateThrottle
	bus       *eventBus
	alerts    *alert.Engine
	calendar  *session.Calendar
	snapshots *repository.FeedSnapshotRepository
	conn      *connectionManager
	gen       *generator
	mirror    func(q entity.Quote)

	symbolMu sync.RWMutex
	symbols  map[string]struct{}

	pollMu    sync.Mutex
	pollCount uint64

	snapMu       sync.Mutex
	lastSnapshot time.Time
}

type Option func(*Service)

// WithDialer overrides the websocket dialer, used by tests.
func WithDialer(dial dialFunc) Option {
	return func(s *Service) {
		s.conn.dial = dial
	}
}

// WithMirror registers a hook invoked for every accepted quote update,
// typically publishing it to JetStream for downstream workers.
func WithMirror(fn func(q entity.Quote)) Option {
	return func(s *Service) {
		s.mirror = fn
	}
}

// WithGeneratorSeed pins the mock data source for reproducible runs.
func WithGeneratorSeed(seed int64) Option {
	return func(s *Service) {
		s.gen = newGenerator(s.calendar, seed)
	}
}

// NewService wires the engine. snapshots may be nil, in which case warm
// start and persistence are disabled and in-memory state is the only state.
func NewService(cfg config.FeedConfig, calendar *session.Calendar, snapshots *repository.FeedSnapshotRepository, opts ...Option) *Service {
	cfg = cfg.Normalized()
	if calendar == nil {
		calendar = session.DefaultCalendar()
	}

	s := &Service{
		cfg:       cfg,
		cache:     newMarketCache(),
		throttle:  newUpdateThrottle(cfg.MaxUpdatesPerSecond),
		bus:       newEventBus(),
		calendar:  calendar,
		snapshots: snapshots,
		gen:       newGenerator(calendar, time.Now().UnixNano()),
		symbols:   make(map[string]struct{}),
	}

	var store alert.Store
	if snapshots != nil {
		store = snapshots
	}
	s.alerts = alert.NewEngine(store, func(trigger entity.AlertTrigger) {
		s.bus.Publish(Event{
			Kind:    entity.FeedEventAlert,
			Symbol:  trigger.Alert.Symbol,
			Payload: trigger,
		})
	})

	s.conn = newConnectionManager(cfg, nil)
	s.conn.onMessage = s.handleStreamMessage
	s.conn.onPoll = s.pollOnce
	s.conn.symbols = s.SubscribedSymbols
	s.conn.onStatus = func(status entity.ConnectionStatus) {
		s.bus.Publish(Event{Kind: entity.FeedEventConnection, Payload: status})
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Restore warm starts the engine from the snapshot store: recent quotes,
// the alert set and the subscribed-symbol list. Failures are logged and the
// engine starts cold.
func (s *Service) Restore(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	quotes, err := s.snapshots.LoadQuotes(ctx, s.cfg.SnapshotMaxAge)
	if err != nil {
		logrus.Warnf("failed to restore quote snapshot: %v", err)
	}
	for _, q := range quotes {
		s.cache.SetQuote(q)
	}

	alerts, err := s.snapshots.LoadAlerts(ctx)
	if err != nil {
		logrus.Warnf("failed to restore alerts: %v", err)
	}
	if len(alerts) > 0 {
		s.alerts.Load(alerts)
	}

	symbols, err := s.snapshots.LoadSymbols(ctx)
	if err != nil {
		logrus.Warnf("failed to restore subscribed symbols: %v", err)
	}
	if len(symbols) > 0 {
		s.symbolMu.Lock()
		for _, symbol := range symbols {
			s.symbols[entity.NormalizeSymbol(symbol)] = struct{}{}
		}
		s.symbolMu.Unlock()
	}

	logrus.WithFields(logrus.Fields{
		"quotes":  len(quotes),
		"alerts":  len(alerts),
		"symbols": len(symbols),
	}).Info("feed state restored from snapshot store")
}

func (s *Service) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx)
}

func (s *Service) Disconnect() {
	s.conn.Disconnect()
}

// Cleanup tears the connection down and clears every in-memory collection.
// Used at process end; the service must be re-populated before reuse.
func (s *Service) Cleanup() {
	s.Disconnect()
	s.cache.Clear()
	s.bus.Clear()
	s.throttle.Reset()
	s.alerts.Clear()

	s.symbolMu.Lock()
	s.symbols = make(map[string]struct{})
	s.symbolMu.Unlock()
}

func (s *Service) Subscribe(kind entity.FeedEventKind, symbol string, handler Handler) string {
	return s.bus.Subscribe(kind, symbol, handler)
}

func (s *Service) Unsubscribe(id string) {
	s.bus.Unsubscribe(id)
}

// SubscribeSymbol tracks an instrument: polled every tick in polling mode
// and subscribed on the stream when live.
func (s *Service) SubscribeSymbol(ctx context.Context, symbol string) {
	normalized := entity.NormalizeSymbol(symbol)
	if normalized == "" {
		return
	}

	s.symbolMu.Lock()
	_, exists := s.symbols[normalized]
	s.symbols[normalized] = struct{}{}
	s.symbolMu.Unlock()

	if exists {
		return
	}

	s.conn.SendControl(entity.StreamControl{
		Type:      entity.StreamControlSubscribe,
		Symbol:    normalized,
		DataTypes: []string{"quote", "trade", "orderbook", "depth", "sentiment"},
		Timestamp: time.Now().UnixMilli(),
	})
	s.persistSymbols(ctx)
}

func (s *Service) UnsubscribeSymbol(ctx context.Context, symbol string) {
	normalized := entity.NormalizeSymbol(symbol)

	s.symbolMu.Lock()
	_, exists := s.symbols[normalized]
	delete(s.symbols, normalized)
	s.symbolMu.Unlock()

	if !exists {
		return
	}

	s.conn.SendControl(entity.StreamControl{
		Type:      entity.StreamControlUnsubscribe,
		Symbol:    normalized,
		Timestamp: time.Now().UnixMilli(),
	})
	s.persistSymbols(ctx)
}

func (s *Service) SubscribedSymbols() []string {
	s.symbolMu.RLock()
	defer s.symbolMu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)

	return out
}

func (s *Service) GetQuote(symbol string) (entity.Quote, bool) {
	return s.cache.Quote(symbol)
}

func (s *Service) GetQuotes(symbols ...string) []entity.Quote {
	return s.cache.Quotes(symbols...)
}

func (s *Service) GetOrderBook(symbol string) (entity.OrderBook, bool) {
	return s.cache.OrderBook(symbol)
}

func (s *Service) GetTrades(symbol string, limit int) []entity.Trade {
	return s.cache.Trades(symbol, limit)
}

func (s *Service) GetMarketDepth(symbol string) (entity.MarketDepth, bool) {
	return s.cache.Depth(symbol)
}

// GetMarketSentiment with an empty symbol returns the whole-market reading.
func (s *Service) GetMarketSentiment(symbol string) (entity.MarketSentiment, bool) {
	return s.cache.Sentiment(symbol)
}

func (s *Service) GetConnectionStatus() entity.ConnectionStatus {
	return s.conn.Status()
}

func (s *Service) CurrentMarketSession() entity.MarketSession {
	return s.calendar.CurrentSession(time.Now())
}

// BufferedQuotes exposes the throttle's deferred updates for a symbol, in
// arrival order.
func (s *Service) BufferedQuotes(symbol string) []entity.Quote {
	return s.throttle.Buffered(symbol)
}

func (s *Service) CreateAlert(ctx context.Context, spec alert.CreateSpec) (entity.MarketAlert, error) {
	return s.alerts.Create(ctx, spec)
}

func (s *Service) GetAlerts() []entity.MarketAlert {
	return s.alerts.Alerts()
}

func (s *Service) DeleteAlert(ctx context.Context, id string) error {
	return s.alerts.Delete(ctx, id)
}

func (s *Service) ToggleAlert(ctx context.Context, id string) (entity.MarketAlert, error) {
	return s.alerts.Toggle(ctx, id)
}

// handleStreamMessage dispatches one inbound envelope by its type tag. A
// malformed payload or unknown tag is logged and dropped without affecting
// other messages.
func (s *Service) handleStreamMessage(ctx context.Context, raw []byte) {
	var env entity.StreamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logrus.Warnf("dropping unparseable stream message: %v", err)
		return
	}

	switch env.Type {
	case entity.StreamMessageQuote:
		var q entity.Quote
		if err := json.Unmarshal(env.Data, &q); err != nil {
			logrus.Warnf("dropping malformed quote payload: %v", err)
			return
		}
		s.ingestQuote(ctx, q)

	case entity.StreamMessageTrade:
		var t entity.Trade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			logrus.Warnf("dropping malformed trade payload: %v", err)
			return
		}
		t.Symbol = entity.NormalizeSymbol(t.Symbol)
		s.cache.AddTrade(t)
		s.bus.Publish(Event{Kind: entity.FeedEventTrade, Symbol: t.Symbol, Payload: t})

	case entity.StreamMessageOrderBook:
		var b entity.OrderBook
		if err := json.Unmarshal(env.Data, &b); err != nil {
			logrus.Warnf("dropping malformed orderbook payload: %v", err)
			return
		}
		b.Symbol = entity.NormalizeSymbol(b.Symbol)
		b.RefreshDerived()
		s.cache.SetOrderBook(b)
		s.bus.Publish(Event{Kind: entity.FeedEventOrderBook, Symbol: b.Symbol, Payload: b})

	case entity.StreamMessageDepth:
		var d entity.MarketDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			logrus.Warnf("dropping malformed depth payload: %v", err)
			return
		}
		d.Symbol = entity.NormalizeSymbol(d.Symbol)
		s.cache.SetDepth(d)
		s.bus.Publish(Event{Kind: entity.FeedEventDepth, Symbol: d.Symbol, Payload: d})

	case entity.StreamMessageSentiment:
		var snt entity.MarketSentiment
		if err := json.Unmarshal(env.Data, &snt); err != nil {
			logrus.Warnf("dropping malformed sentiment payload: %v", err)
			return
		}
		s.cache.SetSentiment(snt)
		s.bus.Publish(Event{Kind: entity.FeedEventSentiment, Symbol: snt.Symbol, Payload: snt})

	case entity.StreamMessageHeartbeat:
		s.conn.RecordHeartbeat(env.Timestamp)

	default:
		logrus.WithField("type", env.Type).Warn("dropping stream message with unknown type")
	}
}

// ingestQuote runs the accepted-update pipeline: throttle, cache, alert
// evaluation, fan-out, mirror, opportunistic snapshot. Notifications fire
// after the cache write so subscribers always observe the new value.
func (s *Service) ingestQuote(ctx context.Context, q entity.Quote) bool {
	q.Symbol = entity.NormalizeSymbol(q.Symbol)
	if q.Symbol == "" {
		return false
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now()
	}

	if !s.throttle.Admit(q) {
		return false
	}

	s.cache.SetQuote(q)
	s.conn.MarkUpdate()
	s.alerts.Evaluate(ctx, q)
	s.bus.Publish(Event{Kind: entity.FeedEventQuote, Symbol: q.Symbol, Payload: q})

	if s.mirror != nil {
		s.mirror(q)
	}

	s.persistQuotes(ctx)

	return true
}

// pollOnce is the polling fallback tick: one quote per tracked symbol plus
// slower-moving shapes on a modulus schedule.
func (s *Service) pollOnce(ctx context.Context) {
	s.pollMu.Lock()
	s.pollCount++
	tick := s.pollCount
	s.pollMu.Unlock()

	now := time.Now()
	for _, symbol := range s.SubscribedSymbols() {
		s.ingestQuote(ctx, s.gen.Quote(symbol, now))

		book := s.gen.OrderBook(symbol, now)
		s.cache.SetOrderBook(book)
		s.bus.Publish(Event{Kind: entity.FeedEventOrderBook, Symbol: symbol, Payload: book})

		depth := s.gen.Depth(symbol, now)
		s.cache.SetDepth(depth)
		s.bus.Publish(Event{Kind: entity.FeedEventDepth, Symbol: symbol, Payload: depth})

		if tick%tradeEveryNthPoll == 0 {
			trade := s.gen.Trade(symbol, now)
			s.cache.AddTrade(trade)
			s.bus.Publish(Event{Kind: entity.FeedEventTrade, Symbol: symbol, Payload: trade})
		}

		if tick%sentimentEveryNthPoll == 0 {
			snt := s.gen.Sentiment(symbol, now)
			s.cache.SetSentiment(snt)
			s.bus.Publish(Event{Kind: entity.FeedEventSentiment, Symbol: symbol, Payload: snt})
		}
	}

	if tick%sentimentEveryNthPoll == 0 {
		market := s.gen.Sentiment("", now)
		s.cache.SetSentiment(market)
		s.bus.Publish(Event{Kind: entity.FeedEventSentiment, Payload: market})
	}
}

// persistQuotes snapshots the quote set at most once per interval; the
// serialization cost is O(all symbols), so a burst of accepted updates
// must not pay it per update.
func (s *Service) persistQuotes(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	s.snapMu.Lock()
	if time.Since(s.lastSnapshot) < quoteSnapshotInterval {
		s.snapMu.Unlock()
		return
	}
	s.lastSnapshot = time.Now()
	s.snapMu.Unlock()

	if err := s.snapshots.SaveQuotes(ctx, s.cache.Quotes(), s.cfg.SnapshotMaxAge); err != nil {
		logrus.Debugf("quote snapshot write failed: %v", err)
	}
}

func (s *Service) persistSymbols(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	if err := s.snapshots.SaveSymbols(ctx, s.SubscribedSymbols()); err != nil {
		logrus.Warnf("symbol snapshot write failed: %v", err)
	}
}
