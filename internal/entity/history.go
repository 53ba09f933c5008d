package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteHistory is the persisted form of an accepted quote update, written by
// the market data worker.
type QuoteHistory struct {
	Symbol        string          `db:"symbol" json:"symbol"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Change        decimal.Decimal `db:"change" json:"change"`
	ChangePercent float64         `db:"change_percent" json:"change_percent"`
	Volume        int64           `db:"volume" json:"volume"`
	Open          decimal.Decimal `db:"open" json:"open"`
	High          decimal.Decimal `db:"high" json:"high"`
	Low           decimal.Decimal `db:"low" json:"low"`
	PreviousClose decimal.Decimal `db:"previous_close" json:"previous_close"`
	MarketStatus  string          `db:"market_status" json:"market_status"`
	CapturedAt    time.Time       `db:"captured_at" json:"captured_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

func (q QuoteHistory) TableName() string {
	return "quote_history"
}

// NewQuoteHistory maps a live quote to its history row.
func NewQuoteHistory(q Quote) QuoteHistory {
	now := time.Now().UTC()

	return QuoteHistory{
		Symbol:        NormalizeSymbol(q.Symbol),
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		PreviousClose: q.PreviousClose,
		MarketStatus:  string(q.MarketStatus),
		CapturedAt:    q.Timestamp.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
