package entity

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type MarketStatus string

const (
	MarketStatusOpen       MarketStatus = "open"
	MarketStatusClosed     MarketStatus = "closed"
	MarketStatusPreMarket  MarketStatus = "pre-market"
	MarketStatusAfterHours MarketStatus = "after-hours"
)

// NormalizeSymbol uppercases and trims an instrument key. Every cache map in
// the feed service is keyed by the normalized form.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Bid           decimal.Decimal `json:"bid"`
	BidSize       int64           `json:"bid_size"`
	Ask           decimal.Decimal `json:"ask"`
	AskSize       int64           `json:"ask_size"`
	Fundamentals  *Fundamentals   `json:"fundamentals,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	MarketStatus  MarketStatus    `json:"market_status"`
}

type Fundamentals struct {
	MarketCap      null.Float  `json:"market_cap"`
	PE             null.Float  `json:"pe"`
	EPS            null.Float  `json:"eps"`
	Dividend       null.Float  `json:"dividend"`
	Yield          null.Float  `json:"yield"`
	Beta           null.Float  `json:"beta"`
	FiftyTwoWkHigh null.Float  `json:"fifty_two_week_high"`
	FiftyTwoWkLow  null.Float  `json:"fifty_two_week_low"`
	AverageVolume  null.Int    `json:"average_volume"`
	Sector         null.String `json:"sector"`
	Industry       null.String `json:"industry"`
}
