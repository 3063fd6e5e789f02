package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementFormatted("US")
	m.IncrementFormatted("US")
	m.IncrementError("invalid_country_code")
	m.IncrementCache("hit")
	m.IncrementArchive("ok")
	m.ObserveFormatLatency(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Formatted.WithLabelValues("US")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("invalid_country_code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("ok")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementFormatted("US")
		m.IncrementError("x")
		m.IncrementCache("miss")
		m.IncrementArchive("error")
		m.ObserveFormatLatency(time.Second)
	})
}
