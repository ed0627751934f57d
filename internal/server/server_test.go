package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"shadeqc/internal"
	"shadeqc/internal/analytics"
	"shadeqc/internal/capture"
	"shadeqc/internal/metrics"
	"shadeqc/internal/session"
	"shadeqc/internal/source"
	"shadeqc/internal/storage"
)

type stubLoader struct {
	rows []internal.RawRow
	err  error
}

func (l *stubLoader) Load(_ context.Context, location string) ([]internal.RawRow, source.Document, error) {
	if l.err != nil {
		return nil, source.Document{}, l.err
	}
	return l.rows, source.Document{Location: location, FetchedAt: time.Now()}, nil
}

func setup(t *testing.T, loader *stubLoader) *httptest.Server {
	t.Helper()
	db, err := storage.Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := metrics.NewRegistry()
	today := func() string { return "2026-05-04" }
	sess := session.New(db, session.Options{Location: "inspection_data.csv", Loader: loader, Metrics: reg, Today: today})
	_ = sess.Reload(context.Background())
	capt := capture.New(sess, capture.Options{Metrics: reg, Rand: func() float64 { return 0.2 }, Today: today})

	srv := httptest.NewServer(New(Options{
		Session:     sess,
		Capture:     capt,
		Metrics:     reg.Handler(),
		ReportTitle: "QC",
		Now:         func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) },
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func sampleRows() []internal.RawRow {
	return []internal.RawRow{
		{"Date": "2026-05-01", "Roll ID": "R1", "Supplier": "Arvind Mills", "DeltaE": "0.8", "Image": "http://img/1.jpg"},
		{"Date": "2026-05-02", "Roll ID": "R2", "Supplier": "Arvind Mills", "DeltaE": "3.5"},
		{"Date": "2026-05-02", "Roll ID": "R3", "Supplier": "Welspun", "DeltaE": "2.5"},
	}
}

func getJSON(t *testing.T, url string, dst any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})
	var body map[string]string
	getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, "OK", body["status"])
}

func TestOverviewAndRecords(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})

	var recs recordsResponse
	getJSON(t, srv.URL+"/api/records", &recs)
	assert.True(t, recs.Available)
	require.Len(t, recs.Records, 3)
	assert.Equal(t, "csv-0", recs.Records[0].ID)

	var ov analytics.Overview
	getJSON(t, srv.URL+"/api/overview", &ov)
	assert.True(t, ov.Available)
	assert.Equal(t, 3, ov.Summary.Total)
	assert.Equal(t, 1, ov.Summary.Accepted)
	assert.Equal(t, 1, ov.Summary.Hold)
	assert.Equal(t, 1, ov.Summary.Rejected)
	require.Len(t, ov.Suppliers, 2)
	assert.Equal(t, "Arvind Mills", ov.Suppliers[0].Name)
	assert.Equal(t, "50.0%", ov.Suppliers[0].AcceptanceRate)
	require.Len(t, ov.Trend, 3)
	assert.Equal(t, "R3", recs.Records[2].RollNo)
	assert.Equal(t, 2.5, ov.Trend[0].DeltaE)
}

func TestUnavailableSourceAnswersEmpty(t *testing.T) {
	srv := setup(t, &stubLoader{err: errors.New("connection refused")})

	var ov analytics.Overview
	getJSON(t, srv.URL+"/api/overview", &ov)
	assert.False(t, ov.Available)
	assert.Equal(t, 0, ov.Summary.Total)
	assert.Equal(t, "0.00", ov.Summary.AvgDeltaE)
	assert.Len(t, ov.Distribution, 6)
	assert.Empty(t, ov.Suppliers)

	var recs recordsResponse
	getJSON(t, srv.URL+"/api/records", &recs)
	assert.False(t, recs.Available)
	assert.NotNil(t, recs.Records)
	assert.Empty(t, recs.Records)

	var status session.Status
	getJSON(t, srv.URL+"/api/status", &status)
	assert.False(t, status.Available)
	assert.Equal(t, "connection refused", status.Error)
}

func TestLogsAndSuggest(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})

	var logs logsResponse
	getJSON(t, srv.URL+"/api/logs?supplier=arvind", &logs)
	require.Len(t, logs.Groups, 2)
	assert.Equal(t, "2026-05-02", logs.Groups[0].Date)
	assert.Equal(t, "arvind", logs.Filter.Supplier)

	var sugg suggestResponse
	getJSON(t, srv.URL+"/api/suppliers/suggest?q=arv", &sugg)
	require.NotEmpty(t, sugg.Suggestions)
	assert.Equal(t, "Arvind Mills", sugg.Suggestions[0].Name)

	resp, err := http.Get(srv.URL + "/api/suppliers/suggest?q=a&n=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var recent recordsResponse
	getJSON(t, srv.URL+"/api/inspections/recent?shade=A", &recent)
	require.Len(t, recent.Records, 1)
	assert.Equal(t, "R1", recent.Records[0].RollNo)
}

func TestCapture(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})

	resp, err := http.Post(srv.URL+"/api/inspections/capture", "application/json",
		strings.NewReader(`{"rollNo":"R-9001","quantity":120,"buyer":"Zara","supplier":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/inspections/capture", "application/json",
		strings.NewReader(`{"rollNo":"R-9001","quantity":120,"buyer":"Zara","supplier":"Welspun"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec internal.InspectionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, 0.5, rec.DeltaE)
	assert.Equal(t, internal.ShadeA, rec.Shade)
	assert.Equal(t, "2026-05-04", rec.Date)

	var recs recordsResponse
	getJSON(t, srv.URL+"/api/records", &recs)
	require.Len(t, recs.Records, 4)
	assert.Equal(t, rec.ID, recs.Records[0].ID)
}

func TestMasterAndMeasuredCapture(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})

	var m masterResponse
	getJSON(t, srv.URL+"/api/master", &m)
	assert.False(t, m.Set)

	resp, err := http.Post(srv.URL+"/api/master", "application/json", strings.NewReader(`{"L":50,"a":-1,"b":2}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/inspections/capture", "application/json",
		strings.NewReader(`{"supplier":"Welspun","sample":{"L":50,"a":0,"b":0}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec internal.InspectionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, 2.37, rec.DeltaE)
	assert.Equal(t, internal.DecisionHold, rec.Decision)
}

func TestReportAndMetrics(t *testing.T) {
	srv := setup(t, &stubLoader{rows: sampleRows()})

	resp, err := http.Get(srv.URL + "/api/report.xlsx?buyer=Zara&contract=C-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Shade_Report_20260504_100000.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	title, err := f.GetCellValue("Shade Report", "A1")
	require.NoError(t, err)
	assert.Equal(t, "QC", title)
	roll, err := f.GetCellValue("Shade Report", "B9")
	require.NoError(t, err)
	assert.Equal(t, "R1", roll)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	require.Equal(t, http.StatusOK, mresp.StatusCode)
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, mresp.Body)
	assert.Contains(t, buf.String(), "shadeqc_source_loads_total")
}

func TestReloadRecovers(t *testing.T) {
	loader := &stubLoader{err: errors.New("down")}
	srv := setup(t, loader)

	loader.err = nil
	loader.rows = sampleRows()
	resp, err := http.Post(srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var status session.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Available)
	assert.Equal(t, 3, status.Count)
}

func TestBatchesNewestFirst(t *testing.T) {
	loader := &stubLoader{err: errors.New("down")}
	srv := setup(t, loader)

	loader.err = nil
	loader.rows = sampleRows()
	resp, err := http.Post(srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	var batches []internal.BatchRow
	getJSON(t, srv.URL+"/api/batches?n=5", &batches)
	require.Len(t, batches, 2)
	assert.Equal(t, 3, batches[0].Counts["rows"])
	assert.Equal(t, 0, batches[1].Counts["rows"])
	assert.Equal(t, string(internal.OriginSource), batches[0].Kind)

	resp, err = http.Get(srv.URL + "/api/batches?n=-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
