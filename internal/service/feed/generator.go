package feed

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markcheno/go-talib"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/service/session"
	"github.com/shopspring/decimal"
)

const (
	generatorHistoryLen = 64
	generatorBookLevels = 5

	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbPeriod   = 20
)

// generator is the bundled polling data source: a per-symbol random walk
// producing the full market data shapes with session-stamped status. It
// keeps enough close history per symbol to compute the sentiment indicator
// bundle.
type generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	calendar *session.Calendar
	states   map[string]*symbolState
}

type symbolState struct {
	open      decimal.Decimal
	prevClose decimal.Decimal
	last      decimal.Decimal
	high      decimal.Decimal
	low       decimal.Decimal
	volume    int64
	closes    []float64
	volumes   []float64
}

func newGenerator(calendar *session.Calendar, seed int64) *generator {
	return &generator{
		rng:      rand.New(rand.NewSource(seed)),
		calendar: calendar,
		states:   make(map[string]*symbolState),
	}
}

// state seeds a deterministic base price per symbol so restarts look stable.
func (g *generator) state(symbol string) *symbolState {
	if s, ok := g.states[symbol]; ok {
		return s
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	base := decimal.NewFromInt(int64(100 + h.Sum32()%2400))

	closes := make([]float64, 0, generatorHistoryLen)
	volumes := make([]float64, 0, generatorHistoryLen)
	price := base
	for i := 0; i < generatorHistoryLen; i++ {
		price = g.step(price)
		closes = append(closes, price.InexactFloat64())
		volumes = append(volumes, float64(100+g.rng.Intn(5000)))
	}

	s := &symbolState{
		open:      price,
		prevClose: base,
		last:      price,
		high:      price,
		low:       price,
		closes:    closes,
		volumes:   volumes,
	}
	g.states[symbol] = s

	return s
}

// step moves a price by up to ±0.5%, two-decimal rounded.
func (g *generator) step(price decimal.Decimal) decimal.Decimal {
	pct := (g.rng.Float64() - 0.5) / 100
	next := price.Mul(decimal.NewFromFloat(1 + pct)).Round(2)
	if next.LessThanOrEqual(decimal.Zero) {
		return price
	}
	return next
}

func (g *generator) Quote(symbol string, now time.Time) entity.Quote {
	symbol = entity.NormalizeSymbol(symbol)

	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state(symbol)
	s.last = g.step(s.last)
	if s.last.GreaterThan(s.high) {
		s.high = s.last
	}
	if s.low.IsZero() || s.last.LessThan(s.low) {
		s.low = s.last
	}

	tick := int64(10 + g.rng.Intn(990))
	s.volume += tick
	s.closes = appendCapped(s.closes, s.last.InexactFloat64(), generatorHistoryLen)
	s.volumes = appendCapped(s.volumes, float64(tick), generatorHistoryLen)

	change := s.last.Sub(s.prevClose)
	changePercent := 0.0
	if !s.prevClose.IsZero() {
		changePercent = change.Div(s.prevClose).InexactFloat64() * 100
	}

	halfSpread := s.last.Mul(decimal.NewFromFloat(0.0005)).Round(2)

	return entity.Quote{
		Symbol:        symbol,
		Price:         s.last,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        s.volume,
		Open:          s.open,
		High:          s.high,
		Low:           s.low,
		PreviousClose: s.prevClose,
		Bid:           s.last.Sub(halfSpread),
		BidSize:       int64(10 + g.rng.Intn(500)),
		Ask:           s.last.Add(halfSpread),
		AskSize:       int64(10 + g.rng.Intn(500)),
		Timestamp:     now,
		MarketStatus:  g.calendar.MarketStatus(now),
	}
}

func (g *generator) OrderBook(symbol string, now time.Time) entity.OrderBook {
	symbol = entity.NormalizeSymbol(symbol)

	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state(symbol)
	tick := s.last.Mul(decimal.NewFromFloat(0.001)).Round(2)
	if tick.IsZero() {
		tick = decimal.NewFromFloat(0.1)
	}

	book := entity.OrderBook{
		Symbol:    symbol,
		Bids:      make([]entity.OrderBookLevel, 0, generatorBookLevels),
		Asks:      make([]entity.OrderBookLevel, 0, generatorBookLevels),
		Timestamp: now,
	}

	for i := 1; i <= generatorBookLevels; i++ {
		offset := tick.Mul(decimal.NewFromInt(int64(i)))
		book.Bids = append(book.Bids, entity.OrderBookLevel{
			Price:    s.last.Sub(offset),
			Quantity: int64(10 + g.rng.Intn(1000)),
			Orders:   1 + g.rng.Intn(20),
		})
		book.Asks = append(book.Asks, entity.OrderBookLevel{
			Price:    s.last.Add(offset),
			Quantity: int64(10 + g.rng.Intn(1000)),
			Orders:   1 + g.rng.Intn(20),
		})
	}

	book.RefreshDerived()

	return book
}

func (g *generator) Trade(symbol string, now time.Time) entity.Trade {
	symbol = entity.NormalizeSymbol(symbol)

	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state(symbol)
	quantity := int64(10 + g.rng.Intn(500))
	side := entity.TradeSideBuy
	if g.rng.Intn(2) == 1 {
		side = entity.TradeSideSell
	}

	return entity.Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Price:     s.last,
		Quantity:  quantity,
		Side:      side,
		Type:      entity.TradeTypeRegular,
		Value:     s.last.Mul(decimal.NewFromInt(quantity)),
		Timestamp: now,
	}
}

func (g *generator) Depth(symbol string, now time.Time) entity.MarketDepth {
	book := g.OrderBook(symbol, now)

	depth := entity.MarketDepth{
		Symbol:    book.Symbol,
		Timestamp: now,
	}

	profile := make([]entity.VolumeBucket, 0, len(book.Bids)+len(book.Asks))
	for _, level := range book.Bids {
		depth.TotalBidQuantity += level.Quantity
		depth.TotalBidValue = depth.TotalBidValue.Add(level.Price.Mul(decimal.NewFromInt(level.Quantity)))
		profile = append(profile, entity.VolumeBucket{Price: level.Price, Volume: level.Quantity})
	}
	for _, level := range book.Asks {
		depth.TotalAskQuantity += level.Quantity
		depth.TotalAskValue = depth.TotalAskValue.Add(level.Price.Mul(decimal.NewFromInt(level.Quantity)))
		profile = append(profile, entity.VolumeBucket{Price: level.Price, Volume: level.Quantity})
	}
	depth.VolumeProfile = profile

	if depth.TotalAskQuantity > 0 {
		depth.BidAskRatio = float64(depth.TotalBidQuantity) / float64(depth.TotalAskQuantity)
	}
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		depth.PriceRange = entity.PriceRange{
			Low:  book.Bids[len(book.Bids)-1].Price,
			High: book.Asks[len(book.Asks)-1].Price,
		}
	}

	return depth
}

// Sentiment derives the indicator bundle from the per-symbol close history.
// An empty symbol yields the whole-market reading averaged over all tracked
// symbols.
func (g *generator) Sentiment(symbol string, now time.Time) entity.MarketSentiment {
	g.mu.Lock()
	defer g.mu.Unlock()

	if symbol == "" {
		return g.wholeMarketSentiment(now)
	}

	symbol = entity.NormalizeSymbol(symbol)
	s := g.state(symbol)

	return sentimentFromHistory(symbol, s.closes, s.volumes, now)
}

func (g *generator) wholeMarketSentiment(now time.Time) entity.MarketSentiment {
	if len(g.states) == 0 {
		return entity.MarketSentiment{
			Overall:   entity.SentimentNeutral,
			Timestamp: now,
		}
	}

	total := 0.0
	for symbol, s := range g.states {
		total += sentimentFromHistory(symbol, s.closes, s.volumes, now).Score
	}
	score := total / float64(len(g.states))

	return entity.MarketSentiment{
		Overall:   labelForScore(score),
		Score:     score,
		Timestamp: now,
	}
}

func sentimentFromHistory(symbol string, closes, volumes []float64, now time.Time) entity.MarketSentiment {
	if len(closes) < macdSlow+macdSignal {
		return entity.MarketSentiment{
			Symbol:    symbol,
			Overall:   entity.SentimentNeutral,
			Timestamp: now,
		}
	}

	lastClose := closes[len(closes)-1]

	rsi := talib.Rsi(closes, rsiPeriod)
	lastRSI := rsi[len(rsi)-1]

	macdLine, signalLine, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	lastMACD := macdLine[len(macdLine)-1]
	lastSignal := signalLine[len(signalLine)-1]
	lastHist := hist[len(hist)-1]

	upper, _, lower := talib.BBands(closes, bbPeriod, 2.0, 2.0, 0)
	lastUpper := upper[len(upper)-1]
	lastLower := lower[len(lower)-1]

	// Bollinger position in [0,100]: 0 hugging the lower band, 100 the upper.
	bollingerPos := 50.0
	if lastUpper > lastLower {
		bollingerPos = clamp((lastClose-lastLower)/(lastUpper-lastLower)*100, 0, 100)
	}

	volumeRatio := 1.0
	if avg := mean(volumes); avg > 0 && len(volumes) > 0 {
		volumeRatio = volumes[len(volumes)-1] / avg
	}

	momentum := entity.MomentumTriad{
		Short:  percentChange(closes, 5),
		Medium: percentChange(closes, 15),
		Long:   percentChange(closes, 30),
	}

	// Weighted score in [-100, 100]: RSI distance from the midline, MACD
	// histogram direction, band position and short momentum.
	rsiScore := (50 - lastRSI) * 2
	macdScore := 0.0
	if lastHist > 0 {
		macdScore = 50
	} else if lastHist < 0 {
		macdScore = -50
	}
	bandScore := (50 - bollingerPos) * 1.5
	momentumScore := clamp(momentum.Short*20, -100, 100)

	score := clamp(rsiScore*0.3+macdScore*0.3+bandScore*0.2+momentumScore*0.2, -100, 100)

	signals := make([]entity.SentimentSignal, 0, 3)
	if lastRSI < 30 {
		signals = append(signals, entity.SentimentSignal{
			Type:       "rsi_oversold",
			Strength:   30 - lastRSI,
			Reason:     "RSI below 30",
			Confidence: 0.7,
		})
	} else if lastRSI > 70 {
		signals = append(signals, entity.SentimentSignal{
			Type:       "rsi_overbought",
			Strength:   lastRSI - 70,
			Reason:     "RSI above 70",
			Confidence: 0.7,
		})
	}
	if lastMACD > lastSignal {
		signals = append(signals, entity.SentimentSignal{
			Type:       "macd_bullish",
			Strength:   lastHist,
			Reason:     "MACD above signal line",
			Confidence: 0.6,
		})
	} else if lastMACD < lastSignal {
		signals = append(signals, entity.SentimentSignal{
			Type:       "macd_bearish",
			Strength:   -lastHist,
			Reason:     "MACD below signal line",
			Confidence: 0.6,
		})
	}
	if bollingerPos > 95 {
		signals = append(signals, entity.SentimentSignal{
			Type:       "band_breakout",
			Strength:   bollingerPos - 95,
			Reason:     "price at upper Bollinger band",
			Confidence: 0.5,
		})
	}

	return entity.MarketSentiment{
		Symbol:  symbol,
		Overall: labelForScore(score),
		Score:   score,
		Indicators: entity.SentimentIndicators{
			RSI: lastRSI,
			MACD: entity.MACDTriple{
				MACD:      lastMACD,
				Signal:    lastSignal,
				Histogram: lastHist,
			},
			BollingerPosition: bollingerPos,
			VolumeRatio:       volumeRatio,
			Momentum:          momentum,
		},
		Signals:   signals,
		Timestamp: now,
	}
}

func labelForScore(score float64) entity.SentimentLabel {
	switch {
	case score > 20:
		return entity.SentimentBullish
	case score < -20:
		return entity.SentimentBearish
	default:
		return entity.SentimentNeutral
	}
}

func appendCapped(values []float64, v float64, limit int) []float64 {
	values = append(values, v)
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values
}

func percentChange(closes []float64, lookback int) float64 {
	if len(closes) <= lookback {
		return 0
	}

	past := closes[len(closes)-1-lookback]
	if past == 0 {
		return 0
	}

	return (closes[len(closes)-1] - past) / past * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
