package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"StockVote/internal/di"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze CODE",
	Short: "Analyze one instrument without creating a batch",
	Long: `Run the strategies on one instrument and print every vote and the
consensus. Nothing is persisted.

Examples:
  stockvote analyze 000001.SZ
  stockvote analyze 600519 --strategies rsi,bollinger --days 60`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeStrategies []string
	analyzeDays       int
	analyzeFormat     string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringSliceVar(&analyzeStrategies, "strategies", nil, "strategy names (default: all)")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 30, "analysis window in days")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table", "output format: table or json")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if analyzeDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, cleanup, err := di.InitializeServices(cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer cleanup()

	to := time.Now()
	res, err := svc.Analyzer.AnalyzeInstrument(cmd.Context(), args[0], analyzeStrategies, to.AddDate(0, 0, -analyzeDays), to)
	if err != nil {
		return err
	}
	if strings.EqualFold(analyzeFormat, "json") {
		return writeJSON(os.Stdout, res)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tSTATUS\tSIGNAL\tCONFIDENCE\tBARS\tREASONS")
	for _, r := range res.PerStrategy {
		detail := strings.Join(r.Reasons, "; ")
		if r.Error != "" {
			detail = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n", r.StrategyName, r.Status, r.Signal, r.Confidence, r.DataPoints, detail)
	}
	_ = w.Flush()
	fmt.Printf("\n%s: %s (%s) confidence %.2f consistency %.2f, %d/%d valid votes\n",
		res.InstrumentID, res.Signal, res.Tier, res.Confidence, res.Consistency, res.ValidVotes(), res.Requested)
	return nil
}
