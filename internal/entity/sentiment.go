package entity

import "time"

// WholeMarketKey is the sentinel cache key for market-wide sentiment, used
// when a sentiment record carries no symbol.
const WholeMarketKey = "MARKET"

type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "bullish"
	SentimentBearish SentimentLabel = "bearish"
	SentimentNeutral SentimentLabel = "neutral"
)

type MACDTriple struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type MomentumTriad struct {
	Short  float64 `json:"short"`
	Medium float64 `json:"medium"`
	Long   float64 `json:"long"`
}

type SentimentIndicators struct {
	RSI               float64       `json:"rsi"`
	MACD              MACDTriple    `json:"macd"`
	BollingerPosition float64       `json:"bollinger_position"`
	VolumeRatio       float64       `json:"volume_ratio"`
	Momentum          MomentumTriad `json:"momentum"`
}

type SentimentSignal struct {
	Type       string  `json:"type"`
	Strength   float64 `json:"strength"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// MarketSentiment is a derived bullish/bearish/neutral reading. Score is in
// [-100, 100]. An empty Symbol means whole-market sentiment.
type MarketSentiment struct {
	Symbol     string              `json:"symbol,omitempty"`
	Overall    SentimentLabel      `json:"overall"`
	Score      float64             `json:"score"`
	Indicators SentimentIndicators `json:"indicators"`
	Signals    []SentimentSignal   `json:"signals"`
	Timestamp  time.Time           `json:"timestamp"`
}

// CacheKey resolves the map key for this record, falling back to the
// whole-market sentinel when no symbol is set.
func (s MarketSentiment) CacheKey() string {
	if s.Symbol == "" {
		return WholeMarketKey
	}
	return NormalizeSymbol(s.Symbol)
}
