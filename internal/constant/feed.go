package constant

import "fmt"

const (
	QuoteStreamName       = "market_feed"
	QuoteStreamSubjectAll = "market_feed.>"

	QuoteInsertQueueGroup = "market_feed_insert_group"
	QuoteInsertQueueName  = "market_feed_queue_insert"
)

// GetQuoteStreamSubject builds the per-symbol mirror subject, e.g.
// market_feed.quote.NABIL.
func GetQuoteStreamSubject(symbol string) string {
	return fmt.Sprintf("market_feed.quote.%s", symbol)
}

// GetQuoteStreamSubjectAllSymbols matches every mirrored quote.
func GetQuoteStreamSubjectAllSymbols() string {
	return "market_feed.quote.*"
}
