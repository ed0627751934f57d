// Package server exposes the session, its aggregates and the capture flow
// over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shadeqc/internal"
	"shadeqc/internal/analytics"
	"shadeqc/internal/capture"
	"shadeqc/internal/colour"
	"shadeqc/internal/pipeline"
	"shadeqc/internal/session"
)

// maxRequestBodySize limits POST bodies.
const maxRequestBodySize = 1 << 20

type Session interface {
	Snapshot() ([]internal.InspectionRecord, session.Status, error)
	Status() session.Status
	Reload(ctx context.Context) error
	Batches(limit int) ([]internal.BatchRow, error)
}

type Capturer interface {
	Capture(req capture.Request) (internal.InspectionRecord, error)
	SetMaster(lab colour.Lab)
	Master() (colour.Lab, bool)
}

type Options struct {
	Session     Session
	Capture     Capturer
	Metrics     http.Handler
	Logger      *slog.Logger
	ReportTitle string
	Now         func() time.Time
}

type Server struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, log: logger.With(slog.String("component", "http"))}
}

// Handler registers every route on a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/records", s.handleRecords)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/suppliers/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/inspections/recent", s.handleRecent)
	mux.HandleFunc("POST /api/inspections/capture", s.handleCapture)
	mux.HandleFunc("GET /api/master", s.handleGetMaster)
	mux.HandleFunc("POST /api/master", s.handleSetMaster)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("GET /api/batches", s.handleBatches)
	mux.HandleFunc("GET /api/report.xlsx", s.handleReport)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Session.Status())
}

// snapshot writes a 500 and returns ok=false when the store itself fails.
// An unavailable source is not an error here: records are simply empty.
func (s *Server) snapshot(w http.ResponseWriter) ([]internal.InspectionRecord, session.Status, bool) {
	recs, status, err := s.opts.Session.Snapshot()
	if err != nil {
		s.log.Error("read records failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return nil, status, false
	}
	return recs, status, true
}

type recordsResponse struct {
	Available bool                        `json:"available"`
	Records   []internal.InspectionRecord `json:"records"`
}

func (s *Server) handleRecords(w http.ResponseWriter, _ *http.Request) {
	recs, status, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Available: status.Available, Records: recs})
}

func (s *Server) handleOverview(w http.ResponseWriter, _ *http.Request) {
	recs, status, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.BuildOverview(recs, status.Available))
}

type logsResponse struct {
	Available bool                 `json:"available"`
	Filter    analytics.Filter     `json:"filter"`
	Groups    []analytics.LogGroup `json:"groups"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	recs, status, ok := s.snapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := analytics.Filter{Search: q.Get("search"), Supplier: q.Get("supplier"), Date: q.Get("date")}
	writeJSON(w, http.StatusOK, logsResponse{
		Available: status.Available,
		Filter:    filter,
		Groups:    analytics.LogView(recs, filter),
	})
}

type suggestResponse struct {
	Available   bool                           `json:"available"`
	Suggestions []analytics.SupplierSuggestion `json:"suggestions"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	recs, status, ok := s.snapshot(w)
	if !ok {
		return
	}
	n, err := intParam(r, "n")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestResponse{
		Available:   status.Available,
		Suggestions: analytics.SuggestSuppliers(recs, r.URL.Query().Get("q"), n),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recs, status, ok := s.snapshot(w)
	if !ok {
		return
	}
	shade := strings.TrimSpace(r.URL.Query().Get("shade"))
	if shade == "" {
		writeError(w, http.StatusBadRequest, errors.New("shade is required"))
		return
	}
	n, err := intParam(r, "n")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{
		Available: status.Available,
		Records:   analytics.RecentByShade(recs, shade, n),
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req capture.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.opts.Capture.Capture(req)
	switch {
	case errors.Is(err, capture.ErrSupplierRequired), errors.Is(err, capture.ErrMasterRequired):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		s.log.Error("capture failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type masterResponse struct {
	Set    bool        `json:"set"`
	Master *colour.Lab `json:"master"`
}

func (s *Server) handleGetMaster(w http.ResponseWriter, _ *http.Request) {
	lab, ok := s.opts.Capture.Master()
	resp := masterResponse{Set: ok}
	if ok {
		resp.Master = &lab
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetMaster(w http.ResponseWriter, r *http.Request) {
	var lab colour.Lab
	if err := decodeBody(w, r, &lab); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.opts.Capture.SetMaster(lab)
	s.log.Info("master shade set", slog.Float64("L", lab.L), slog.Float64("a", lab.A), slog.Float64("b", lab.B))
	writeJSON(w, http.StatusOK, masterResponse{Set: true, Master: &lab})
}

// handleReload answers with the resulting status even when the load fails,
// so the caller sees the unavailable flag and the cause.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Session.Reload(r.Context()); err != nil {
		s.log.Warn("reload failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, s.opts.Session.Status())
}

const defaultBatchLimit = 20

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if n == 0 {
		n = defaultBatchLimit
	}
	batches, err := s.opts.Session.Batches(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	recs, _, ok := s.snapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	now := s.opts.Now()
	meta := pipeline.ReportMeta{
		Title:       s.opts.ReportTitle,
		Buyer:       q.Get("buyer"),
		Contract:    q.Get("contract"),
		GeneratedAt: now,
	}
	var buf bytes.Buffer
	if err := pipeline.WriteReportXLSX(&buf, recs, meta); err != nil {
		s.log.Error("report failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="Shade_Report_%s.xlsx"`, now.Format("20060102_150405")))
	_, _ = w.Write(buf.Bytes())
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
