package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"shadeqc/internal"
	"shadeqc/internal/metrics"
	"shadeqc/internal/pipeline"
	"shadeqc/internal/source"
	"shadeqc/internal/storage"
)

// ErrEmptySource is returned when the source parses but holds no data rows.
var ErrEmptySource = errors.New("source contains no inspection rows")

var errNotLoaded = errors.New("source not loaded yet")

const (
	metaLocation = "source.location"
	metaLoadedAt = "source.loadedAt"
)

type Loader interface {
	Load(ctx context.Context, location string) ([]internal.RawRow, source.Document, error)
}

type Status struct {
	Available bool   `json:"available" yaml:"available"`
	Source    string `json:"source" yaml:"source"`
	LoadedAt  string `json:"loadedAt,omitempty" yaml:"loadedAt,omitempty"`
	Count     int    `json:"count" yaml:"count"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	TraceID   string `json:"traceId,omitempty" yaml:"traceId,omitempty"`

	// LastLoadedAt is the time of the last successful load, kept while the
	// source is unavailable.
	LastLoadedAt string         `json:"lastLoadedAt,omitempty" yaml:"lastLoadedAt,omitempty"`
	Origins      map[string]int `json:"origins,omitempty" yaml:"origins,omitempty"`
}

type Options struct {
	Location string
	Prefix   string
	Loader   Loader
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	Today    func() string
}

// Service owns the in-memory record list of one running process. It is safe
// for concurrent use by HTTP handlers.
type Service struct {
	loadMu sync.Mutex
	mu     sync.RWMutex
	db     *storage.DB
	opts   Options
	logger *slog.Logger
	status Status
}

func New(db *storage.DB, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		opts:   opts,
		logger: logger.With(slog.String("component", "session")),
		status: Status{Source: opts.Location, Error: errNotLoaded.Error()},
	}
}

// Reload loads the configured location.
func (s *Service) Reload(ctx context.Context) error {
	return s.LoadFrom(ctx, s.opts.Location)
}

// LoadFrom fetches, parses and normalizes location and swaps it in as the
// source batch. Captured and imported records are kept. On any failure the
// source batch is emptied and the session is flagged unavailable. Readers
// are only blocked for the swap, not for the fetch.
func (s *Service) LoadFrom(ctx context.Context, location string) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	start := time.Now()
	traceID := uuid.NewString()
	log := s.logger.With(slog.String("trace_id", traceID), slog.String("source", location))

	rows, doc, err := s.opts.Loader.Load(ctx, location)
	fetched := time.Since(start)
	if err == nil && len(rows) == 0 {
		err = fmt.Errorf("%w: %s", ErrEmptySource, location)
	}
	if err != nil {
		log.Warn("source load failed", slog.String("error", err.Error()))
		s.fail(log, location, traceID, err, start)
		return err
	}

	recs := s.Normalizer(s.opts.Prefix).Normalize(rows)
	normalized := time.Since(start) - fetched

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ReplaceOrigin(internal.OriginSource, location, recs); err != nil {
		log.Error("store records failed", slog.String("error", err.Error()))
		s.failLocked(log, location, traceID, err, start)
		return err
	}

	loadedAt := doc.FetchedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}
	s.status = Status{
		Available: true,
		Source:    location,
		LoadedAt:  loadedAt.UTC().Format(time.RFC3339),
		Count:     len(recs),
		TraceID:   traceID,
	}
	warnOn(log, "store metadata failed", s.db.SetMetadata(metaLocation, location))
	warnOn(log, "store metadata failed", s.db.SetMetadata(metaLoadedAt, s.status.LoadedAt))

	counts := decisionCounts(recs)
	counts["rows"] = len(recs)
	warnOn(log, "store batch failed", s.db.InsertBatch(traceID, location, string(internal.OriginSource), map[string]float64{
		"fetchMs":     float64(fetched.Milliseconds()),
		"normalizeMs": float64(normalized.Milliseconds()),
		"totalMs":     float64(time.Since(start).Milliseconds()),
	}, counts))

	if m := s.opts.Metrics; m != nil {
		m.RowsNormalized.Add(float64(len(recs)))
		m.LoadFinished("ok", time.Since(start).Seconds())
	}
	s.refreshGauge()
	log.Info("source loaded", slog.Int("records", len(recs)), slog.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) fail(log *slog.Logger, location, traceID string, cause error, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(log, location, traceID, cause, start)
}

func (s *Service) failLocked(log *slog.Logger, location, traceID string, cause error, start time.Time) {
	warnOn(log, "clear source records failed", s.db.ReplaceOrigin(internal.OriginSource, location, nil))
	warnOn(log, "store batch failed", s.db.InsertBatch(traceID, location, string(internal.OriginSource), map[string]float64{
		"totalMs": float64(time.Since(start).Milliseconds()),
	}, map[string]int{"rows": 0}))
	s.status = Status{Source: location, Error: cause.Error(), TraceID: traceID}
	if m := s.opts.Metrics; m != nil {
		m.LoadFinished("failed", time.Since(start).Seconds())
	}
	s.refreshGauge()
}

func warnOn(log *slog.Logger, msg string, err error) {
	if err != nil {
		log.Warn(msg, slog.String("error", err.Error()))
	}
}

// Snapshot returns the ordered records together with the status they were
// read under. Records are empty while the session is unavailable.
func (s *Service) Snapshot() ([]internal.InspectionRecord, Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	if !status.Available {
		return []internal.InspectionRecord{}, status, nil
	}
	recs, err := s.db.ListRecords()
	if err != nil {
		return nil, status, err
	}
	status.Count = len(recs)
	return recs, status, nil
}

func (s *Service) Records() ([]internal.InspectionRecord, error) {
	recs, _, err := s.Snapshot()
	return recs, err
}

// Status reports the load state with the stored record count per origin.
func (s *Service) Status() Status {
	_, status, err := s.Snapshot()
	if err != nil {
		status.Error = err.Error()
		return status
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, err := s.db.GetMetadata(metaLoadedAt); err == nil && v != nil {
		status.LastLoadedAt = *v
	}
	status.Origins = map[string]int{}
	for _, origin := range []internal.RecordOrigin{internal.OriginSource, internal.OriginCapture, internal.OriginImport} {
		n, err := s.db.CountRecords(origin)
		if err != nil {
			status.Error = err.Error()
			return status
		}
		status.Origins[string(origin)] = n
	}
	return status
}

// Batches lists recent load and import runs, newest first.
func (s *Service) Batches(limit int) ([]internal.BatchRow, error) {
	return s.db.ListBatches(limit)
}

// Prepend stores a synthetic record in front of all others.
func (s *Service) Prepend(rec internal.InspectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.PrependRecord(rec); err != nil {
		return err
	}
	s.refreshGauge()
	return nil
}

// ImportRecords appends a batch from a secondary source such as mail,
// replacing any earlier batch stored under the same key.
func (s *Service) ImportRecords(batchKey string, recs []internal.InspectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ReplaceBatch(internal.OriginImport, batchKey, recs); err != nil {
		return err
	}
	if m := s.opts.Metrics; m != nil {
		m.RowsNormalized.Add(float64(len(recs)))
	}
	s.refreshGauge()
	return nil
}

// Normalizer returns a Normalizer that reports filled fields to metrics and
// the debug log.
func (s *Service) Normalizer(prefix string) pipeline.Normalizer {
	m := s.opts.Metrics
	log := s.logger
	return pipeline.Normalizer{
		Prefix: prefix,
		Today:  s.opts.Today,
		Observer: func(ev pipeline.FillEvent) {
			if m != nil {
				m.FieldFilled(ev.Field.Name(), string(ev.Kind))
			}
			if ev.Kind == pipeline.FillUnparsed {
				log.Debug("unparsed value defaulted",
					slog.Int("row", ev.Index),
					slog.String("field", ev.Field.Name()),
					slog.String("raw", ev.Raw))
			}
		},
	}
}

func (s *Service) refreshGauge() {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	recs, err := s.db.ListRecords()
	if err != nil {
		return
	}
	m.SessionRecords.Set(float64(len(recs)))
}

func decisionCounts(recs []internal.InspectionRecord) map[string]int {
	out := map[string]int{"accept": 0, "hold": 0, "reject": 0}
	for _, r := range recs {
		switch r.Decision {
		case internal.DecisionAccept:
			out["accept"]++
		case internal.DecisionHold:
			out["hold"]++
		case internal.DecisionReject:
			out["reject"]++
		}
	}
	return out
}
