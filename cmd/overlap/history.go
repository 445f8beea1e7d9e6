package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/audit"
	"github.com/record-overlap/internal/db"
	"github.com/record-overlap/internal/log"
)

func openTracker(ctx context.Context, dsn string, logger *log.Logger) (*audit.Tracker, *db.Connection, error) {
	conn, err := db.NewConnection(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	tracker := audit.NewTracker(conn.DB, logger)
	if err := tracker.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return tracker, conn, nil
}

func recordRun(ctx context.Context, dsn string, results *analysis.Report, logger *log.Logger) error {
	tracker, conn, err := openTracker(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	return tracker.RecordRun(ctx, results)
}

// createHistoryCmd creates the history command
func createHistoryCmd() *cobra.Command {
	var (
		dsn   string
		key   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, or one key across runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadConfig()
			if err != nil {
				return err
			}
			tracker, conn, err := openTracker(cmd.Context(), dsn, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			if key != "" {
				history, err := tracker.KeyHistory(cmd.Context(), key, limit)
				if err != nil {
					return err
				}
				for _, e := range history {
					fmt.Fprintf(out, "%s  %s  %-11s matches=%d rate_a=%.2f rate_b=%.2f jaccard=%.4f\n",
						e.StartedAt.Format("2006-01-02 15:04"), e.RunID, e.Status, e.Matches, e.MatchRateA, e.MatchRateB, e.Jaccard)
				}
				return nil
			}

			runs, err := tracker.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				rate := "n/a"
				if r.ValidationRate != nil {
					rate = fmt.Sprintf("%.2f%%", *r.ValidationRate)
				}
				fmt.Fprintf(out, "%s  %s  %s(%d) vs %s(%d)  keys=%d  hash=%s\n",
					r.StartedAt.Format("2006-01-02 15:04"), r.RunID, r.SourceA, r.RowsA, r.SourceB, r.RowsB, r.ComputedKeys, rate)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "run history connection string (default: PG* environment)")
	cmd.Flags().StringVar(&key, "key", "", "show one key across runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
