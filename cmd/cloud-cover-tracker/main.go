package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/cloud-cover-tracker/internal/config"
)

var cfg *config.AppConfig

var rootCmd = &cobra.Command{
	Use:   "cloud-cover-tracker",
	Short: "Collects and compares cloud-cover forecasts from several weather providers",
	Long: "Collects cloud-cover forecasts for configured locations from OpenWeatherMap, " +
		"Open-Meteo and optionally WeatherAPI, stores them per target date and lead time, " +
		"and reports how forecasts disagree and how accurate each provider is.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, collectCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
