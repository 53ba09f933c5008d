/*
Copyright © 2026 Nepse Labs Engineering <dev@nepselabs.com>
*/
package cmd

import (
	"github.com/nepselabs/feed-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// marketDataWorkerCmd represents the marketDataWorker command
var marketDataWorkerCmd = &cobra.Command{
	Use:   "market-data-worker",
	Short: "Consume mirrored quote updates from the feed gateway",
	Long: `Consumes quote updates mirrored to JetStream by the feed gateway and
persists them to the quote history database.`,
	Run: bootstrap.StartMarketDataWorker,
}

func init() {
	rootCmd.AddCommand(marketDataWorkerCmd)
}
