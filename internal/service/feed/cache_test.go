package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/shopspring/decimal"
)

func TestCacheNormalizesSymbolKeys(t *testing.T) {
	cache := newMarketCache()

	cache.SetQuote(entity.Quote{
		Symbol: "  nabil ",
		Price:  decimal.NewFromInt(1500),
	})

	q, ok := cache.Quote("nabil")
	if !ok {
		t.Fatal("expected quote under normalized key")
	}
	if q.Symbol != "NABIL" {
		t.Fatalf("expected stored symbol NABIL, got %q", q.Symbol)
	}

	if _, ok := cache.Quote("NABIL"); !ok {
		t.Fatal("uppercase lookup should hit the same entry")
	}
}

func TestCacheQuotesFilter(t *testing.T) {
	cache := newMarketCache()
	for _, symbol := range []string{"NABIL", "NHPC", "NTC"} {
		cache.SetQuote(entity.Quote{Symbol: symbol})
	}

	if got := len(cache.Quotes()); got != 3 {
		t.Fatalf("expected all 3 quotes without filter, got %d", got)
	}

	filtered := cache.Quotes("nhpc", "UNKNOWN", "ntc")
	if len(filtered) != 2 {
		t.Fatalf("expected 2 filtered quotes, got %d", len(filtered))
	}
}

func TestTradesNewestFirstAndCapped(t *testing.T) {
	cache := newMarketCache()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	total := maxTradesPerSymbol + 25
	for i := 0; i < total; i++ {
		cache.AddTrade(entity.Trade{
			ID:        fmt.Sprintf("t-%d", i),
			Symbol:    "NABIL",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	all := cache.Trades("NABIL", 0)
	if len(all) != maxTradesPerSymbol {
		t.Fatalf("expected cap of %d trades, got %d", maxTradesPerSymbol, len(all))
	}
	if all[0].ID != fmt.Sprintf("t-%d", total-1) {
		t.Fatalf("expected newest trade first, got %s", all[0].ID)
	}

	limited := cache.Trades("NABIL", 5)
	if len(limited) != 5 {
		t.Fatalf("expected 5 trades, got %d", len(limited))
	}
	if limited[0].ID != all[0].ID {
		t.Fatal("limited view should start at the newest trade")
	}
}

func TestSentimentWholeMarketKey(t *testing.T) {
	cache := newMarketCache()

	cache.SetSentiment(entity.MarketSentiment{Overall: entity.SentimentBullish, Score: 40})
	cache.SetSentiment(entity.MarketSentiment{Symbol: "NHPC", Overall: entity.SentimentBearish, Score: -30})

	market, ok := cache.Sentiment("")
	if !ok || market.Overall != entity.SentimentBullish {
		t.Fatalf("expected whole-market bullish reading, got %+v ok=%v", market, ok)
	}

	scoped, ok := cache.Sentiment("nhpc")
	if !ok || scoped.Overall != entity.SentimentBearish {
		t.Fatalf("expected symbol-scoped bearish reading, got %+v ok=%v", scoped, ok)
	}
}

func TestClearEmptiesEveryCollection(t *testing.T) {
	cache := newMarketCache()
	cache.SetQuote(entity.Quote{Symbol: "NABIL"})
	cache.AddTrade(entity.Trade{Symbol: "NABIL"})
	cache.SetSentiment(entity.MarketSentiment{Symbol: "NABIL"})

	cache.Clear()

	if _, ok := cache.Quote("NABIL"); ok {
		t.Fatal("quote survived Clear")
	}
	if got := cache.Trades("NABIL", 0); len(got) != 0 {
		t.Fatal("trades survived Clear")
	}
	if _, ok := cache.Sentiment("NABIL"); ok {
		t.Fatal("sentiment survived Clear")
	}
}
