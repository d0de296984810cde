package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"StockVote/internal/di"
	"StockVote/internal/strategy"
	"StockVote/pkg/postgres"

	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the registered strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := strategy.NewDefaultRegistry()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLOOKBACK\tDESCRIPTION")
		for _, info := range reg.Describe() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", info.Name, info.Lookback, info.Description)
		}
		return w.Flush()
	},
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete results and finished batches older than the retention horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		job, cleanup, err := di.InitializeRetention(cfg)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		defer cleanup()
		if cleanupDays > 0 {
			job = job.WithHorizon(time.Duration(cleanupDays) * 24 * time.Hour)
		}
		n, err := job.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d results\n", n)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db.DB); err != nil {
			return err
		}
		v, err := postgres.MigrationVersion(ctx, db.DB)
		if err != nil {
			return err
		}
		fmt.Printf("schema at version %d\n", v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd, cleanupCmd, migrateCmd)
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "override retention.horizon, in days")
}
