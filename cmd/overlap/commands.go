package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/log"
	"github.com/record-overlap/internal/report"
	"github.com/record-overlap/internal/web"
)

// createRunCmd creates the run command
func createRunCmd() *cobra.Command {
	var (
		pathA, pathB string
		backend      string
		workers      int
		maxRows      int64
		jsonOut      string
		xlsxOut      string
		exportDir    string
		noColor      bool
		record       bool
		recordDSN    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the overlap analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if pathA != "" {
				cfg.Sources.A.Path = pathA
			}
			if pathB != "" {
				cfg.Sources.B.Path = pathB
			}
			if backend != "" {
				cfg.Engine.Backend = backend
			}
			if workers > 0 {
				cfg.Engine.Workers = workers
			}
			if maxRows > 0 {
				cfg.Sources.A.MaxRows = maxRows
				cfg.Sources.B.MaxRows = maxRows
			}
			if jsonOut != "" {
				cfg.Export.JSON = jsonOut
			}
			if xlsxOut != "" {
				cfg.Export.XLSX = xlsxOut
			}
			if exportDir != "" {
				cfg.Export.Dir = exportDir
			}

			runner, err := analysis.NewRunner(cfg, logger)
			if err != nil {
				return err
			}
			results, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}

			color := !noColor && isatty.IsTerminal(os.Stdout.Fd())
			fmt.Fprint(cmd.OutOrStdout(), report.Table(results, color))

			if cfg.Export.JSON != "" {
				if err := report.SaveJSON(cfg.Export.JSON, results); err != nil {
					return err
				}
				logger.Info("Wrote JSON results", log.String("path", cfg.Export.JSON))
			}
			if cfg.Export.XLSX != "" {
				if err := report.WriteXLSX(cfg.Export.XLSX, results); err != nil {
					return err
				}
				logger.Info("Wrote XLSX results", log.String("path", cfg.Export.XLSX))
			}
			if record {
				return recordRun(cmd.Context(), recordDSN, results, logger)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pathA, "a", "", "side A source path")
	cmd.Flags().StringVar(&pathB, "b", "", "side B source path")
	cmd.Flags().StringVar(&backend, "backend", "", "staging backend: sqlite or memory")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent key workers (default: half the CPU cores)")
	cmd.Flags().Int64Var(&maxRows, "max-rows", 0, "read at most this many rows per source")
	cmd.Flags().StringVar(&jsonOut, "json", "", "write results as JSON")
	cmd.Flags().StringVar(&xlsxOut, "xlsx", "", "write results as an XLSX workbook")
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "write per-key match and anti-match CSVs")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	cmd.Flags().BoolVar(&record, "record", false, "record the run in the PostgreSQL run history")
	cmd.Flags().StringVar(&recordDSN, "record-dsn", "", "run history connection string (default: PG* environment)")

	return cmd
}

// createValidateCmd creates the validate command
func createValidateCmd() *cobra.Command {
	var pathA, pathB string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check sources against the field mapping and report key availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if pathA != "" {
				cfg.Sources.A.Path = pathA
			}
			if pathB != "" {
				cfg.Sources.B.Path = pathB
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			plan, err := analysis.Prepare(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer plan.Close()

			out := cmd.OutOrStdout()
			for _, s := range plan.Sources {
				fmt.Fprintf(out, "%s: %s (%s, %d columns)\n", strings.ToUpper(s.Side.String()), s.Name, s.Location, len(s.Columns))
				if s.RowIDs {
					fmt.Fprintln(out, "   no id column, row numbers will identify records")
				}
			}
			fmt.Fprintln(out)

			available := 0
			for _, kp := range plan.Keys {
				if kp.Available() {
					available++
					fmt.Fprintf(out, "  ok           %s\n", kp.Def)
					continue
				}
				fmt.Fprintf(out, "  unavailable  %s: %s\n", kp.Def, kp.Reason())
			}
			fmt.Fprintf(out, "\n%d of %d keys available\n", available, len(plan.Keys))

			switch {
			case !cfg.Hash.Enabled:
				fmt.Fprintln(out, "Hash check: disabled")
			case plan.HashAvailable():
				fmt.Fprintf(out, "Hash check: ready (stored hash column on A: %t, B: %t)\n", plan.HashFields[0], plan.HashFields[1])
			default:
				fmt.Fprintln(out, "Hash check: unavailable, email field not resolved")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pathA, "a", "", "side A source path")
	cmd.Flags().StringVar(&pathB, "b", "", "side B source path")
	return cmd
}

// createKeysCmd creates the keys command
func createKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the configured match keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, def := range cfg.Keys {
				kind := "single"
				if def.IsCompound() {
					kind = "compound"
				}
				fmt.Fprintf(out, "%-28s %-8s %s\n", def.Name, kind, strings.Join(def.Fields, " + "))
			}
			return nil
		},
	}
}

// createServeCmd creates the serve command
func createServeCmd() *cobra.Command {
	var (
		resultsPath string
		host        string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a results JSON file over a read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadConfig()
			if err != nil {
				return err
			}
			results, err := report.LoadJSON(resultsPath)
			if err != nil {
				return err
			}

			webCfg := web.DefaultConfig()
			if host != "" {
				webCfg.Server.Host = host
			}
			if port > 0 {
				webCfg.Server.Port = port
			}
			return web.NewServer(webCfg, results, logger).Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "", "results JSON written by run --json")
	cmd.Flags().StringVar(&host, "host", "", "listen host (default OVERLAP_SERVE_HOST or 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default OVERLAP_SERVE_PORT or 8080)")
	cmd.MarkFlagRequired("results")
	return cmd
}
