/*
Copyright © 2026 Nepse Labs Engineering <dev@nepselabs.com>
*/
package cmd

import (
	"github.com/nepselabs/feed-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// feedGatewayCmd represents the feedGateway command
var feedGatewayCmd = &cobra.Command{
	Use:   "feed-gateway",
	Short: "Run the market feed gateway",
	Long: `Runs the market feed engine: live-stream connection with polling
fallback, in-memory market cache, per-symbol rate limiting, price alerts and
the HTTP API. Accepted quote updates are mirrored to JetStream for the
market data worker.`,
	Run: bootstrap.StartFeedGateway,
}

func init() {
	rootCmd.AddCommand(feedGatewayCmd)
}
