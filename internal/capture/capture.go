// Package capture records simulated or measured inspection scans into the
// running session.
package capture

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shadeqc/internal"
	"shadeqc/internal/colour"
	"shadeqc/internal/metrics"
	"shadeqc/internal/pipeline"
)

var (
	ErrSupplierRequired = errors.New("supplier is required")
	ErrMasterRequired   = errors.New("sample given without a master shade")
)

// simulatedMax bounds a simulated deltaE to [0, simulatedMax).
const simulatedMax = 2.5

type Prepender interface {
	Prepend(rec internal.InspectionRecord) error
}

type Request struct {
	RollNo   string      `json:"rollNo"`
	Quantity float64     `json:"quantity"`
	Buyer    string      `json:"buyer"`
	Supplier string      `json:"supplier"`
	Image    string      `json:"image"`
	Sample   *colour.Lab `json:"sample,omitempty"`
	Master   *colour.Lab `json:"master,omitempty"`
}

type Options struct {
	Metrics *metrics.Registry
	Logger  *slog.Logger
	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand  func() float64
	Today func() string
}

type Service struct {
	sink Prepender
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	master *colour.Lab
}

func New(sink Prepender, opts Options) *Service {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Today == nil {
		opts.Today = func() string { return time.Now().Format(time.DateOnly) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sink: sink, opts: opts, log: logger.With(slog.String("component", "capture"))}
}

// SetMaster stores the reference shade later samples are measured against.
func (s *Service) SetMaster(lab colour.Lab) {
	s.mu.Lock()
	s.master = &lab
	s.mu.Unlock()
}

func (s *Service) Master() (colour.Lab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.master == nil {
		return colour.Lab{}, false
	}
	return *s.master, true
}

// Capture builds one record from req and prepends it to the session.
func (s *Service) Capture(req Request) (internal.InspectionRecord, error) {
	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return internal.InspectionRecord{}, ErrSupplierRequired
	}

	deltaE, measured, err := s.deltaE(req)
	if err != nil {
		return internal.InspectionRecord{}, err
	}
	shade := pipeline.ShadeForDeltaE(deltaE)

	id := uuid.NewString()
	rec := internal.InspectionRecord{
		ID:       "cap-" + id,
		Date:     s.opts.Today(),
		RollNo:   strings.TrimSpace(req.RollNo),
		Buyer:    strings.TrimSpace(req.Buyer),
		Supplier: supplier,
		Quantity: req.Quantity,
		DeltaE:   deltaE,
		Shade:    shade,
		Decision: pipeline.DecisionForShade(string(shade)),
	}
	if rec.RollNo == "" {
		rec.RollNo = "UNK-" + id[:8]
	}
	if rec.Buyer == "" {
		rec.Buyer = internal.NotEntered
	}
	if math.IsNaN(rec.Quantity) || math.IsInf(rec.Quantity, 0) || rec.Quantity < 0 {
		rec.Quantity = 0
	}
	if img := strings.TrimSpace(req.Image); img != "" {
		rec.Image = &img
	}

	if err := s.sink.Prepend(rec); err != nil {
		return internal.InspectionRecord{}, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.Captures.Inc()
	}
	s.log.Info("roll captured",
		slog.String("id", rec.ID),
		slog.String("roll", rec.RollNo),
		slog.Float64("delta_e", rec.DeltaE),
		slog.String("shade", string(rec.Shade)),
		slog.Bool("measured", measured))
	return rec, nil
}

func (s *Service) deltaE(req Request) (float64, bool, error) {
	if req.Sample == nil {
		return round2(s.opts.Rand() * simulatedMax), false, nil
	}
	master := req.Master
	if master == nil {
		if m, ok := s.Master(); ok {
			master = &m
		}
	}
	if master == nil {
		return 0, false, ErrMasterRequired
	}
	return round2(colour.DeltaE2000(*req.Sample, *master)), true, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
