package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Formatted addresses by resolved country code
	Formatted *prometheus.CounterVec

	// Rejected requests by error kind
	Errors *prometheus.CounterVec

	// Result cache lookups by outcome: "hit", "miss", "error"
	CacheLookups *prometheus.CounterVec

	// Archive writes by outcome: "ok", "error", "dropped"
	ArchiveWrites *prometheus.CounterVec

	FormatLatency prometheus.Histogram
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Formatted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrfmt_formatted_total",
			Help: "Total addresses formatted by country code",
		}, []string{"country_code"}),

		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrfmt_errors_total",
			Help: "Total rejected format requests by error kind",
		}, []string{"kind"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrfmt_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		}, []string{"outcome"}),

		ArchiveWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "addrfmt_archive_writes_total",
			Help: "Archive writes by outcome",
		}, []string{"outcome"}),

		FormatLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "addrfmt_format_duration_seconds",
			Help:    "Duration of a single format call",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
	}
}

func (m *Metrics) IncrementFormatted(countryCode string) {
	if m != nil {
		m.Formatted.WithLabelValues(countryCode).Inc()
	}
}

func (m *Metrics) IncrementError(kind string) {
	if m != nil {
		m.Errors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncrementCache(outcome string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementArchive(outcome string) {
	if m != nil {
		m.ArchiveWrites.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveFormatLatency(d time.Duration) {
	if m != nil {
		m.FormatLatency.Observe(d.Seconds())
	}
}
