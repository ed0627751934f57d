// Command mail-listener polls a mailbox for inspection reports without the
// dashboard. Imported rows are exported to OUTPUT_DIR when auto export is on.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"shadeqc/internal"
	"shadeqc/internal/config"
	"shadeqc/internal/connectors"
	"shadeqc/internal/listener"
	"shadeqc/internal/metrics"
	"shadeqc/internal/pipeline"
	"shadeqc/internal/session"
	"shadeqc/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	log := newLogger(cfg)
	slog.SetDefault(log)

	db, err := storage.Open()
	must(err)
	defer db.Close()

	conn, err := connectors.ForProvider(cfg, cfg.MailListenerProvider)
	must(err)

	reg := metrics.NewRegistry()
	sess := session.New(db, session.Options{Prefix: cfg.SourceIDPrefix, Metrics: reg, Logger: log})
	importer := pipeline.NewImportService(db, sess, pipeline.ImportOptions{Normalizer: sess.Normalizer, Metrics: reg, Logger: log})

	// the session never loads a source here, so the export reads the store
	svc := listener.NewService(cfg, cfg.MailListenerProvider, connectors.NewFetchService(db, conn, log), importer, storedRecords{db}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("mail listener started", slog.String("provider", cfg.MailListenerProvider), slog.String("label", cfg.MailListenerLabel))
	must(svc.Run(ctx))
}

type storedRecords struct{ db *storage.DB }

func (s storedRecords) Records() ([]internal.InspectionRecord, error) { return s.db.ListRecords() }

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
