package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceRange struct {
	Low  decimal.Decimal `json:"low"`
	High decimal.Decimal `json:"high"`
}

type VolumeBucket struct {
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
}

// MarketDepth aggregates order-book pressure for one symbol. Replaced
// wholesale on every update.
type MarketDepth struct {
	Symbol           string          `json:"symbol"`
	TotalBidQuantity int64           `json:"total_bid_quantity"`
	TotalAskQuantity int64           `json:"total_ask_quantity"`
	TotalBidValue    decimal.Decimal `json:"total_bid_value"`
	TotalAskValue    decimal.Decimal `json:"total_ask_value"`
	BidAskRatio      float64         `json:"bid_ask_ratio"`
	PriceRange       PriceRange      `json:"price_range"`
	VolumeProfile    []VolumeBucket  `json:"volume_profile"`
	Timestamp        time.Time       `json:"timestamp"`
}
