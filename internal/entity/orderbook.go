package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// OrderBook is replaced wholesale on every update. Bids are ordered best
// (highest) first, asks best (lowest) first.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Spread    decimal.Decimal  `json:"spread"`
	MidPrice  decimal.Decimal  `json:"mid_price"`
	Timestamp time.Time        `json:"timestamp"`
}

// RefreshDerived recomputes spread and mid price from the top of book.
func (b *OrderBook) RefreshDerived() {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		b.Spread = decimal.Zero
		b.MidPrice = decimal.Zero
		return
	}

	bestBid := b.Bids[0].Price
	bestAsk := b.Asks[0].Price
	b.Spread = bestAsk.Sub(bestBid)
	b.MidPrice = bestAsk.Add(bestBid).Div(decimal.NewFromInt(2))
}
