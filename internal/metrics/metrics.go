package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RowsNormalized prometheus.Counter
	FieldsFilled   *prometheus.CounterVec
	Loads          *prometheus.CounterVec
	LoadSeconds    prometheus.Histogram
	SessionRecords prometheus.Gauge
	Captures       prometheus.Counter
	MailImported   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rows := prometheus.NewCounter(prometheus.CounterOpts{Name: "shadeqc_rows_normalized_total"})
	filled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "shadeqc_fields_filled_total"}, []string{"field", "kind"})
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "shadeqc_source_loads_total"}, []string{"outcome"})
	loadSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shadeqc_source_load_seconds",
		Buckets: prometheus.DefBuckets,
	})
	records := prometheus.NewGauge(prometheus.GaugeOpts{Name: "shadeqc_session_records"})
	captures := prometheus.NewCounter(prometheus.CounterOpts{Name: "shadeqc_captures_total"})
	mail := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "shadeqc_mail_messages_total"}, []string{"status"})

	r.MustRegister(rows, filled, loads, loadSeconds, records, captures, mail)
	return &Registry{
		reg:            r,
		RowsNormalized: rows,
		FieldsFilled:   filled,
		Loads:          loads,
		LoadSeconds:    loadSeconds,
		SessionRecords: records,
		Captures:       captures,
		MailImported:   mail,
	}
}

func (r *Registry) FieldFilled(field, kind string) { r.FieldsFilled.WithLabelValues(field, kind).Inc() }

func (r *Registry) LoadFinished(outcome string, seconds float64) {
	r.Loads.WithLabelValues(outcome).Inc()
	r.LoadSeconds.Observe(seconds)
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
