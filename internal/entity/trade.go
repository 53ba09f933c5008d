package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

type TradeType string

const (
	TradeTypeRegular TradeType = "regular"
	TradeTypeBlock   TradeType = "block"
	TradeTypeOddLot  TradeType = "odd_lot"
)

type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Side      TradeSide       `json:"side"`
	Type      TradeType       `json:"type"`
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}
