package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shadeqc/internal/config"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg       config.Config
		logLevel  string
		logFormat string
	)
	cmd := &cobra.Command{
		Use:           "shadeqc",
		Short:         "Fabric shade inspection normalizer and dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}
			slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text|json (default LOG_FORMAT)")

	cmd.AddCommand(
		serveCmd(&cfg),
		normalizeCmd(&cfg),
		summaryCmd(&cfg),
		reportCmd(&cfg),
		groupCmd(),
		mailImportCmd(&cfg),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "shadeqc version %s\n", Version)
			},
		},
	)
	return cmd
}

func newLogger(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
