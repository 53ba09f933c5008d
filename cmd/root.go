/*
Copyright © 2026 Nepse Labs Engineering <dev@nepselabs.com>
*/
package cmd

import (
	"os"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/constant"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feed-service",
	Short: "NEPSE real-time market feed service",
	Long: `Real-time market data distribution and alerting engine for NEPSE
instruments. Runs as a feed gateway (live-stream connection with polling
fallback, market cache, alert engine, HTTP API) or as a market data worker
persisting mirrored quote updates.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		logrus.SetReportCaller(config.Env.Log.ShowCaller)

		if config.Env.Env == constant.ProductionEnvironment {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		}

		logLevel, err := logrus.ParseLevel(config.Env.Log.LogLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(logLevel)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: ./config.yml)")
}
