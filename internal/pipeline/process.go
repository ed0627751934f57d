package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shadeqc/internal"
	"shadeqc/internal/metrics"
	"shadeqc/internal/storage"
	"shadeqc/internal/util"
)

// Mail processing states stored on the email row.
const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
)

// RecordSink receives the normalized rows of one imported message.
type RecordSink interface {
	ImportRecords(batchKey string, recs []internal.InspectionRecord) error
}

type ImportOptions struct {
	// Normalizer returns the normalizer for an id prefix. Defaults to a plain
	// Normalizer with that prefix.
	Normalizer func(prefix string) Normalizer
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

type ImportService struct {
	db   *storage.DB
	sink RecordSink
	opts ImportOptions
	log  *slog.Logger
}

func NewImportService(db *storage.DB, sink RecordSink, opts ImportOptions) *ImportService {
	if opts.Normalizer == nil {
		opts.Normalizer = func(prefix string) Normalizer { return Normalizer{Prefix: prefix} }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{db: db, sink: sink, opts: opts, log: logger.With(slog.String("component", "import"))}
}

type ImportResult struct {
	EmailID  int
	Status   string
	Imported int
	Score    float64
}

// ProcessPending imports up to limit fetched messages, optionally only those
// of one provider. It stops at the first store error; a message that cannot
// be parsed is marked failed and processing continues.
func (s *ImportService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus(EmailFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	emails, rows := 0, 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			return emails, rows, err
		}
		emails++
		rows += res.Imported
	}
	return emails, rows, nil
}

func (s *ImportService) ProcessByProviderMessageID(provider, messageID string) (ImportResult, error) {
	email, err := s.db.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ImportResult{}, err
	}
	if email == nil {
		return ImportResult{}, fmt.Errorf("email not found: %s/%s", provider, messageID)
	}
	return s.ProcessEmail(*email)
}

func (s *ImportService) ProcessEmail(email internal.EmailRow) (ImportResult, error) {
	start := time.Now()
	traceID := uuid.NewString()
	log := s.log.With(slog.String("trace_id", traceID), slog.Int("email_id", email.ID))
	res := ImportResult{EmailID: email.ID}

	raw, err := s.db.EmailRaw(email.ID)
	if err != nil {
		return res, err
	}
	ext, err := ExtractRowsFromEmailRaw(raw)
	if err != nil {
		log.Warn("unreadable message", slog.String("error", err.Error()))
		res.Status = EmailFailed
		return res, s.finish(email.ID, traceID, res, start, 0)
	}

	detect := DetectInspectionReport(util.FirstNonEmpty(ext.Subject, email.Subject), ext.Text, ext.HTML, ext.AttachmentNames)
	res.Score = detect.Score
	if !detect.IsInspection || len(ext.Rows) == 0 {
		log.Info("message skipped", slog.Float64("score", detect.Score), slog.String("reason", detect.Reason), slog.Int("rows", len(ext.Rows)))
		res.Status = EmailSkipped
		// a message that used to import but no longer does must not leave rows behind
		if err := s.sink.ImportRecords(batchKey(email.ID), nil); err != nil {
			return res, err
		}
		return res, s.finish(email.ID, traceID, res, start, len(ext.Rows))
	}

	recs := s.opts.Normalizer(fmt.Sprintf("mail%d", email.ID)).Normalize(ext.Rows)
	if err := s.sink.ImportRecords(batchKey(email.ID), recs); err != nil {
		return res, err
	}
	res.Status = EmailProcessed
	res.Imported = len(recs)
	log.Info("message imported", slog.Int("records", len(recs)), slog.String("subject", strings.TrimSpace(ext.Subject)))
	return res, s.finish(email.ID, traceID, res, start, len(ext.Rows))
}

func (s *ImportService) finish(emailID int, traceID string, res ImportResult, start time.Time, extracted int) error {
	if err := s.db.UpdateEmailStatus(emailID, res.Status); err != nil {
		return err
	}
	_ = s.db.InsertBatch(traceID, batchKey(emailID), string(internal.OriginImport),
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"extracted": extracted, "imported": res.Imported})
	if s.opts.Metrics != nil {
		s.opts.Metrics.MailImported.WithLabelValues(res.Status).Inc()
	}
	return nil
}

func batchKey(emailID int) string { return fmt.Sprintf("mail:%d", emailID) }
