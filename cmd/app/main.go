package main

import (
	"fmt"
	"os"

	"StockVote/pkg/config"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the base command for the StockVote CLI
var rootCmd = &cobra.Command{
	Use:   "stockvote",
	Short: "Multi-strategy consensus analysis for equities",
	Long: `StockVote runs a set of technical-analysis strategies over an instrument
universe, folds their signals into one consensus per instrument and records
every batch in Postgres.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
