package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yourorg/address-formatter/internal/archive"
	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/redisx"
	"github.com/yourorg/address-formatter/internal/registry"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, val string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = val
	return nil
}

type recordingArchive struct {
	jobs   []archive.Job
	accept bool
}

func (r *recordingArchive) Enqueue(j archive.Job) bool {
	r.jobs = append(r.jobs, j)
	return r.accept
}

type FormatSuite struct {
	suite.Suite
	router  http.Handler
	kv      *memKV
	archive *recordingArchive
	metrics *metrics.Metrics
}

func TestFormatSuite(t *testing.T) {
	suite.Run(t, new(FormatSuite))
}

func (s *FormatSuite) SetupTest() {
	reg, err := registry.Default()
	require.NoError(s.T(), err)
	f, err := formatter.New(reg)
	require.NoError(s.T(), err)

	s.kv = &memKV{data: map[string]string{}}
	s.archive = &recordingArchive{accept: true}
	s.metrics = metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	RegisterFormat(r, FormatDeps{
		Formatter: f,
		Cache:     redisx.NewResultCache(s.kv, time.Hour),
		Archive:   s.archive,
		Metrics:   s.metrics,
		Logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	s.router = r
}

func (s *FormatSuite) post(body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/v1/addresses/format", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

const springfield = `{"components": {"road": "Main Street", "house_number": "1", "city": "Springfield", "state": "Oregon", "country_code": "US"}}`

func (s *FormatSuite) TestFreshThenCached() {
	rec, first := s.post(springfield)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "fresh", first["source"])
	assert.Equal(s.T(), "1 Main Street\nSpringfield, OR\n", first["formatted"])
	key, _ := first["request_key"].(string)
	require.Len(s.T(), key, 64)
	assert.Len(s.T(), s.kv.data, 1)

	require.Len(s.T(), s.archive.jobs, 1)
	job := s.archive.jobs[0]
	assert.Equal(s.T(), key, job.RequestKey)
	assert.Equal(s.T(), "US", job.CountryCode)
	assert.Equal(s.T(), "Springfield", job.Components["city"])
	assert.Equal(s.T(), "1 Main Street\nSpringfield, OR\n", job.Formatted)

	// same components in another order and key style hit the cache
	rec, second := s.post(`{"components": {"countryCode": "US", "state": "Oregon", "city": "Springfield", "houseNumber": "1", "road": "Main Street"}}`)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "cache", second["source"])
	assert.Equal(s.T(), key, second["request_key"])
	assert.Equal(s.T(), first["formatted"], second["formatted"])
	assert.Equal(s.T(), "US", second["country_code"])
	assert.Len(s.T(), s.archive.jobs, 1)

	assert.Equal(s.T(), 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("miss")))
	assert.Equal(s.T(), 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
}

func (s *FormatSuite) TestAttentionOrderIsNotShared() {
	_, first := s.post(`{"components": {"cafe": "Blue Bottle", "shop": "Corner Shop", "road": "Main Street", "house_number": "1", "city": "Springfield", "state": "Oregon", "country_code": "US"}}`)
	_, swapped := s.post(`{"components": {"shop": "Corner Shop", "cafe": "Blue Bottle", "road": "Main Street", "house_number": "1", "city": "Springfield", "state": "Oregon", "country_code": "US"}}`)

	assert.NotEqual(s.T(), first["request_key"], swapped["request_key"])
	assert.Equal(s.T(), "fresh", swapped["source"])
	assert.Equal(s.T(), "Blue Bottle, Corner Shop\n1 Main Street\nSpringfield, OR\n", first["formatted"])
	assert.Equal(s.T(), "Corner Shop, Blue Bottle\n1 Main Street\nSpringfield, OR\n", swapped["formatted"])
}

func (s *FormatSuite) TestArrayOutput() {
	arrayBody := strings.TrimSuffix(springfield, "}") + `, "output": "array"}`

	_, fresh := s.post(arrayBody)
	assert.Equal(s.T(), "fresh", fresh["source"])
	assert.Equal(s.T(), []any{"1 Main Street", "Springfield, OR"}, fresh["lines"])
	assert.NotContains(s.T(), fresh, "formatted")

	// the shape is not part of the key
	_, cached := s.post(springfield)
	assert.Equal(s.T(), "cache", cached["source"])
	assert.Equal(s.T(), fresh["request_key"], cached["request_key"])
	assert.Equal(s.T(), "1 Main Street\nSpringfield, OR\n", cached["formatted"])

	_, cachedArray := s.post(arrayBody)
	assert.Equal(s.T(), "cache", cachedArray["source"])
	assert.Equal(s.T(), fresh["lines"], cachedArray["lines"])
	assert.Equal(s.T(), "1 Main Street\nSpringfield, OR\n", s.archive.jobs[0].Formatted)
}

func (s *FormatSuite) TestOptionsChangeTheKey() {
	_, plain := s.post(springfield)
	_, appended := s.post(strings.TrimSuffix(springfield, "}") + `, "append_country": true}`)

	assert.NotEqual(s.T(), plain["request_key"], appended["request_key"])
	assert.Equal(s.T(), "fresh", appended["source"])
	assert.Equal(s.T(), "1 Main Street\nSpringfield, OR\nUnited States of America\n", appended["formatted"])
}

func (s *FormatSuite) TestCacheErrorsAreNotFatal() {
	s.kv.err = errors.New("connection refused")

	rec, resp := s.post(springfield)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "fresh", resp["source"])
	assert.Equal(s.T(), 1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("error")))
}

func (s *FormatSuite) TestArchiveDrops() {
	s.archive.accept = false
	rec, _ := s.post(springfield)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), 1.0, testutil.ToFloat64(s.metrics.ArchiveWrites.WithLabelValues("dropped")))
}

func (s *FormatSuite) TestErrors() {
	rec, resp := s.post(`{"components": {"road": "Main Street"}}`)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(s.T(), "missing_country_code", resp["error"])

	rec, resp = s.post(`{"components": ""}`)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(s.T(), "invalid_json", resp["error"])

	rec, resp = s.post(`{`)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(s.T(), "invalid_json", resp["error"])

	rec, resp = s.post(strings.TrimSuffix(springfield, "}") + `, "output": "lines"}`)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
	assert.Equal(s.T(), "invalid_output", resp["error"])

	assert.Empty(s.T(), s.kv.data)
	assert.Empty(s.T(), s.archive.jobs)
}

func TestRegisterFormat_WithoutCacheOrArchive(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	f, err := formatter.New(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	RegisterFormat(r, FormatDeps{Formatter: f})

	req := httptest.NewRequest(http.MethodPost, "/v1/addresses/format", strings.NewReader(springfield))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"fresh"`)

	// archive reads need a store
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/addresses/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
