package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/record-overlap/internal/config"
	"github.com/record-overlap/internal/log"
)

var (
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "overlap",
		Short: "Record overlap analysis",
		Long: `Measures how many person records two datasets share, per single field and
compound key, and checks the integrity of their stored email SHA-256 hashes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "analysis YAML file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file to load (default: search ., .., ../..)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createValidateCmd())
	rootCmd.AddCommand(createKeysCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createHistoryCmd())

	return rootCmd
}

// loadConfig loads .env, the analysis file and OVERLAP_* overrides, then
// initializes the process logger.
func loadConfig() (*config.Analysis, *log.Logger, error) {
	var envPaths []string
	if envFile != "" {
		envPaths = []string{envFile}
	}
	if err := config.LoadEnv(envPaths...); err != nil {
		return nil, nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := log.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
