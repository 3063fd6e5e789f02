package archive

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/address-formatter/internal/events"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/store"
)

type fakeWriter struct {
	mu   sync.Mutex
	recs []store.Record
	err  error
}

func (w *fakeWriter) Upsert(_ context.Context, rec store.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.recs = append(w.recs, rec)
	return "id-" + rec.RequestKey, nil
}

func (w *fakeWriter) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, r := range w.recs {
		out = append(out, r.RequestKey)
	}
	return out
}

func TestArchiver_Write(t *testing.T) {
	w := &fakeWriter{}
	pub := events.NewInMemory(4)
	m := metrics.New(prometheus.NewRegistry())
	a := &Archiver{Store: w, Pub: pub, Metrics: m}

	err := a.Write(context.Background(), Job{
		RequestKey:  "k1",
		CountryCode: "US",
		Components:  map[string]string{"road": "Main Street"},
		Formatted:   "Main Street\n",
	})
	require.NoError(t, err)

	require.Len(t, w.recs, 1)
	assert.Equal(t, "Main Street\n", w.recs[0].Formatted)
	assert.Equal(t, events.AddressFormatted{ID: "id-k1", RequestKey: "k1", CountryCode: "US"}, <-pub.SubscribeAddressFormatted())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("ok")))
}

func TestArchiver_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("conn refused")}
	pub := events.NewInMemory(1)
	m := metrics.New(prometheus.NewRegistry())
	var buf bytes.Buffer
	a := &Archiver{Store: w, Pub: pub, Metrics: m, Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	a.Run(context.Background(), Job{RequestKey: "k1"})

	assert.Empty(t, pub.SubscribeAddressFormatted())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveWrites.WithLabelValues("error")))
	assert.Contains(t, buf.String(), "archive write failed")
	assert.Contains(t, buf.String(), "conn refused")
}

func TestArchiver_Disabled(t *testing.T) {
	var a *Archiver
	assert.False(t, a.Enabled())
	require.NoError(t, a.Write(context.Background(), Job{RequestKey: "k"}))
	require.NoError(t, (&Archiver{}).Write(context.Background(), Job{RequestKey: "k"}))
}

func TestQueue_ProcessesAllBeforeClose(t *testing.T) {
	w := &fakeWriter{}
	a := &Archiver{Store: w}
	q := NewQueue(16, 3, 0, a.Run)

	for _, k := range []string{"a", "b", "c", "d"} {
		require.True(t, q.Enqueue(Job{RequestKey: k}))
	}
	q.Close()

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, w.keys())
	assert.False(t, q.Enqueue(Job{RequestKey: "e"}), "closed queue rejects jobs")
	q.Close()
}

func TestQueue_DedupesInFlightKeys(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 4)
	q := NewQueue(4, 1, 0, func(_ context.Context, j Job) {
		started <- j.RequestKey
		<-release
	})

	require.True(t, q.Enqueue(Job{RequestKey: "k"}))
	assert.False(t, q.Enqueue(Job{RequestKey: "k"}))
	assert.Equal(t, "k", <-started)
	assert.False(t, q.Enqueue(Job{RequestKey: "k"}), "running key is still in flight")

	close(release)
	q.Close()
	assert.Len(t, started, 0)
}

func TestQueue_RateLimited(t *testing.T) {
	var n int
	var mu sync.Mutex
	q := NewQueue(8, 2, 5, func(_ context.Context, _ Job) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	start := time.Now()
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		require.True(t, q.Enqueue(Job{RequestKey: k}))
	}
	q.Close()

	assert.Equal(t, 8, n)
	// a burst of five starts at once, the other three wait 200ms each
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}
