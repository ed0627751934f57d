// Package listener runs the background loops of a long-lived process: the
// mailbox poller and the source file watcher.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"shadeqc/internal"
	"shadeqc/internal/config"
	"shadeqc/internal/connectors"
	"shadeqc/internal/pipeline"
)

type Fetcher interface {
	FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error)
}

type Importer interface {
	ProcessPending(limit int, provider string) (int, int, error)
}

// RecordSource supplies the records written by the auto export.
type RecordSource interface {
	Records() ([]internal.InspectionRecord, error)
}

type Service struct {
	cfg      config.Config
	provider string
	fetcher  Fetcher
	importer Importer
	records  RecordSource
	log      *slog.Logger
	now      func() time.Time
}

func NewService(cfg config.Config, provider string, fetcher Fetcher, importer Importer, records RecordSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		fetcher:  fetcher,
		importer: importer,
		records:  records,
		log:      logger.With(slog.String("component", "mail-listener"), slog.String("provider", provider)),
		now:      time.Now,
	}
}

// Run polls until ctx is done. A failed cycle is logged and retried on the
// next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.log.Error("listener cycle failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Imported  int
	Report    string
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	fetched, err := s.fetcher.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	res.Fetched, res.Stored = fetched.Fetched, fetched.Stored

	res.Processed, res.Imported, err = s.importer.ProcessPending(s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}

	if s.cfg.MailListenerAutoExport && res.Imported > 0 {
		res.Report, err = s.export()
		if err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
	}

	s.log.Info("listener cycle done",
		slog.Int("fetched", res.Fetched),
		slog.Int("stored", res.Stored),
		slog.Int("processed", res.Processed),
		slog.Int("imported", res.Imported),
		slog.String("report", res.Report))
	return res, nil
}

func (s *Service) export() (string, error) {
	recs, err := s.records.Records()
	if err != nil {
		return "", err
	}
	now := s.now()
	out := filepath.Join(s.cfg.OutputDir, "listener", fmt.Sprintf("Shade_Report_%s.xlsx", now.Format("20060102_150405")))
	meta := pipeline.ReportMeta{Title: s.cfg.ReportTitle, GeneratedAt: now}
	if err := pipeline.ExportRecordsToXLSX(recs, meta, out); err != nil {
		return "", err
	}
	return out, nil
}
