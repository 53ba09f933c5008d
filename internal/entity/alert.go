package entity

import (
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertTypePrice     AlertType = "price"
	AlertTypeVolume    AlertType = "volume"
	AlertTypeTechnical AlertType = "technical"
	AlertTypeNews      AlertType = "news"
	AlertTypeEarnings  AlertType = "earnings"
)

type AlertOperator string

const (
	AlertOperatorAbove        AlertOperator = "above"
	AlertOperatorBelow        AlertOperator = "below"
	AlertOperatorEquals       AlertOperator = "equals"
	AlertOperatorCrossesAbove AlertOperator = "crosses_above"
	AlertOperatorCrossesBelow AlertOperator = "crosses_below"
)

type AlertField string

const (
	AlertFieldPrice         AlertField = "price"
	AlertFieldVolume        AlertField = "volume"
	AlertFieldChangePercent AlertField = "change_percent"
	AlertFieldRSI           AlertField = "rsi"
	AlertFieldMACD          AlertField = "macd"
)

type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityMedium AlertPriority = "medium"
	AlertPriorityHigh   AlertPriority = "high"
)

type AlertCondition struct {
	Operator AlertOperator   `json:"operator"`
	Field    AlertField      `json:"field"`
	Value    decimal.Decimal `json:"value"`
}

// MarketAlert is engine-owned once created. TriggeredAt is set at most once
// per lifetime unless the caller reactivates the alert, which clears it.
type MarketAlert struct {
	ID               string         `json:"id"`
	Symbol           string         `json:"symbol"`
	Type             AlertType      `json:"type"`
	Condition        AlertCondition `json:"condition"`
	Message          string         `json:"message"`
	IsActive         bool           `json:"is_active"`
	TriggeredAt      null.Time      `json:"triggered_at"`
	CreatedAt        time.Time      `json:"created_at"`
	Priority         AlertPriority  `json:"priority"`
	NotificationSent bool           `json:"notification_sent"`
}

// AlertTrigger is published on the bus when a condition fires.
type AlertTrigger struct {
	Alert       MarketAlert `json:"alert"`
	Quote       Quote       `json:"quote"`
	Message     string      `json:"message"`
	TriggeredAt time.Time   `json:"triggered_at"`
}
