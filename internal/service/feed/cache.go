package feed

import (
	"sync"

	"github.com/nepselabs/feed-service/internal/entity"
)

const maxTradesPerSymbol = 1000

// marketCache is the in-memory latest-value store. Writes are whole-record
// replacements keyed by normalized symbol; trades are a newest-first deque
// capped at maxTradesPerSymbol.
type marketCache struct {
	mu        sync.RWMutex
	quotes    map[string]entity.Quote
	books     map[string]entity.OrderBook
	depths    map[string]entity.MarketDepth
	sentiment map[string]entity.MarketSentiment
	trades    map[string][]entity.Trade
}

func newMarketCache() *marketCache {
	return &marketCache{
		quotes:    make(map[string]entity.Quote),
		books:     make(map[string]entity.OrderBook),
		depths:    make(map[string]entity.MarketDepth),
		sentiment: make(map[string]entity.MarketSentiment),
		trades:    make(map[string][]entity.Trade),
	}
}

func (c *marketCache) SetQuote(q entity.Quote) {
	q.Symbol = entity.NormalizeSymbol(q.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = q
}

func (c *marketCache) Quote(symbol string) (entity.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[entity.NormalizeSymbol(symbol)]
	return q, ok
}

// Quotes returns the latest quote for each requested symbol, or every cached
// quote when no filter is given.
func (c *marketCache) Quotes(symbols ...string) []entity.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(symbols) == 0 {
		out := make([]entity.Quote, 0, len(c.quotes))
		for _, q := range c.quotes {
			out = append(out, q)
		}
		return out
	}

	out := make([]entity.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := c.quotes[entity.NormalizeSymbol(s)]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (c *marketCache) SetOrderBook(b entity.OrderBook) {
	b.Symbol = entity.NormalizeSymbol(b.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[b.Symbol] = b
}

func (c *marketCache) OrderBook(symbol string) (entity.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[entity.NormalizeSymbol(symbol)]
	return b, ok
}

func (c *marketCache) SetDepth(d entity.MarketDepth) {
	d.Symbol = entity.NormalizeSymbol(d.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.depths[d.Symbol] = d
}

func (c *marketCache) Depth(symbol string) (entity.MarketDepth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.depths[entity.NormalizeSymbol(symbol)]
	return d, ok
}

func (c *marketCache) SetSentiment(s entity.MarketSentiment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentiment[s.CacheKey()] = s
}

// Sentiment returns symbol-scoped sentiment, or the whole-market record when
// symbol is empty.
func (c *marketCache) Sentiment(symbol string) (entity.MarketSentiment, bool) {
	key := entity.WholeMarketKey
	if symbol != "" {
		key = entity.NormalizeSymbol(symbol)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sentiment[key]
	return s, ok
}

func (c *marketCache) AddTrade(t entity.Trade) {
	t.Symbol = entity.NormalizeSymbol(t.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.trades[t.Symbol]
	updated := make([]entity.Trade, 0, len(existing)+1)
	updated = append(updated, t)
	updated = append(updated, existing...)
	if len(updated) > maxTradesPerSymbol {
		updated = updated[:maxTradesPerSymbol]
	}
	c.trades[t.Symbol] = updated
}

// Trades returns up to limit trades, newest first. limit <= 0 means all.
func (c *marketCache) Trades(symbol string, limit int) []entity.Trade {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored := c.trades[entity.NormalizeSymbol(symbol)]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}

	out := make([]entity.Trade, limit)
	copy(out, stored[:limit])
	return out
}

func (c *marketCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.quotes = make(map[string]entity.Quote)
	c.books = make(map[string]entity.OrderBook)
	c.depths = make(map[string]entity.MarketDepth)
	c.sentiment = make(map[string]entity.MarketSentiment)
	c.trades = make(map[string][]entity.Trade)
}
