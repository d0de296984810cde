package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"StockVote/internal/di"
	"StockVote/internal/domain/models"
	"StockVote/internal/usecase"
	"StockVote/pkg/util"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one batch over a universe and print the ranked consensus",
	Long: `Run one batch and wait for it to finish. Without --instruments the
universe is the top --limit instruments by recent traded value.

Examples:
  stockvote batch --limit 200
  stockvote batch --instruments 000001.SZ,600000.SH --strategies kdj,macd
  stockvote batch --signal BUY --top 20 --format json`,
	RunE: runBatch,
}

var (
	batchName        string
	batchInstruments []string
	batchStrategies  []string
	batchLimit       int
	batchConcurrency int
	batchDays        int
	batchTo          string
	batchSignal      string
	batchTop         int
	batchFormat      string
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchName, "name", "", "batch name")
	batchCmd.Flags().StringSliceVar(&batchInstruments, "instruments", nil, "instrument codes, comma separated")
	batchCmd.Flags().StringSliceVar(&batchStrategies, "strategies", nil, "strategy names (default: all)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "universe size when --instruments is empty")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker count (default: analysis.workers)")
	batchCmd.Flags().IntVar(&batchDays, "days", 0, "analysis window in days (default: analysis.window_days)")
	batchCmd.Flags().StringVar(&batchTo, "to", "", "window end, RFC3339, date or unix seconds (default: now)")
	batchCmd.Flags().StringVar(&batchSignal, "signal", "", "only list BUY, SELL or HOLD")
	batchCmd.Flags().IntVar(&batchTop, "top", 20, "rows to list")
	batchCmd.Flags().StringVar(&batchFormat, "format", "table", "output format: table or json")
}

func runBatch(cmd *cobra.Command, args []string) error {
	var signalFilter models.Signal
	if batchSignal != "" {
		s, err := models.ParseSignal(batchSignal)
		if err != nil {
			return err
		}
		signalFilter = s
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := usecase.BatchRequest{
		Name:        batchName,
		Instruments: batchInstruments,
		Limit:       batchLimit,
		Strategies:  batchStrategies,
		Concurrency: batchConcurrency,
		Days:        batchDays,
		Progress: func(done, total int, id string) {
			fmt.Fprintf(os.Stderr, "\r%d/%d %-12s", done, total, id)
		},
	}
	if batchTo != "" {
		to, ok := util.ParseTime(batchTo)
		if !ok {
			return fmt.Errorf("invalid --to %q", batchTo)
		}
		req.To = to
	}
	handle, err := svc.Batches.Start(ctx, req)
	if err != nil {
		return err
	}
	run, werr := handle.Wait(ctx)
	if werr != nil {
		// interrupted: cancel and let in-flight instruments finish
		handle.Cancel()
		run, _ = handle.Wait(cmd.Context())
	}
	fmt.Fprintln(os.Stderr)

	report, err := svc.Reports.BatchReport(cmd.Context(), run.ID, signalFilter, batchTop)
	if err != nil {
		return fmt.Errorf("read back batch %s: %w", run.ID, err)
	}
	if strings.EqualFold(batchFormat, "json") {
		return writeJSON(os.Stdout, report)
	}
	printReport(os.Stdout, report)
	printFailures(os.Stdout, handle.Outcomes(), batchTop)
	if run.Status == models.BatchFailed {
		return fmt.Errorf("batch %s failed: %s", run.ID, run.Error)
	}
	return nil
}

func printReport(out io.Writer, r *usecase.BatchReport) {
	b := r.Summary.Batch
	fmt.Fprintf(out, "batch %s (%s)\n", b.ID, b.Name)
	fmt.Fprintf(out, "status %s, %d/%d succeeded, %d failed, took %s\n",
		b.Status, b.Succeeded, b.UniverseSize, b.Failed, b.Duration().Round(time.Millisecond))
	if b.Error != "" {
		fmt.Fprintf(out, "error: %s\n", b.Error)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tBUY\tSELL\tHOLD\tFAILED\tSKIPPED")
	for _, s := range r.Summary.Strategies {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Strategy,
			s.Counts[models.SignalBuy], s.Counts[models.SignalSell], s.Counts[models.SignalHold], s.Failed, s.Skipped)
	}
	_ = w.Flush()
	fmt.Fprintln(out)

	fmt.Fprintf(out, "tiers: strong=%d lean=%d watch=%d insufficient=%d\n\n",
		r.Summary.Tiers[models.TierStrong], r.Summary.Tiers[models.TierLean],
		r.Summary.Tiers[models.TierWatch], r.Summary.Tiers[models.TierInsufficient])

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTRUMENT\tSIGNAL\tTIER\tCONFIDENCE\tCONSISTENCY\tVOTES\tTOP REASON")
	for _, t := range r.Top {
		reason := ""
		if len(t.Reasons) > 0 {
			reason = t.Reasons[0]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%d\t%s\n",
			t.InstrumentID, t.Signal, t.Tier, t.Confidence, t.Consistency, t.Votes, reason)
	}
	_ = w.Flush()
}

// printFailures lists up to limit instruments that produced no consensus.
func printFailures(out io.Writer, outcomes []models.InstrumentOutcome, limit int) {
	var failed []models.InstrumentOutcome
	for _, o := range outcomes {
		if !o.Succeeded {
			failed = append(failed, o)
		}
	}
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(out, "\nfailed instruments: %d\n", len(failed))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTRUMENT\tERROR")
	for i, o := range failed {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "...\t%d more\n", len(failed)-limit)
			break
		}
		fmt.Fprintf(w, "%s\t%s\n", o.InstrumentID, o.Error)
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
