package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/yourorg/address-formatter/http"
	httpv1 "github.com/yourorg/address-formatter/http/v1"
	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/logger"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/redisx"
)

type RouterDeps struct {
	Formatter *formatter.Formatter
	Cache     *redisx.ResultCache
	Archive   httpv1.Archiver
	Store     httpv1.Reader
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger

	RateLimit        int // requests per IP per minute; 0 disables
	BatchConcurrency int
}

func BuildRouter(d RouterDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(d.Logger))
	r.Use(middleware.Recoverer)
	if d.RateLimit > 0 {
		r.Use(httprate.LimitByIP(d.RateLimit, 1*time.Minute))
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	httpapi.RegisterFormat(r, httpapi.FormatDeps{
		Formatter:        d.Formatter,
		Metrics:          d.Metrics,
		Logger:           d.Logger,
		BatchConcurrency: d.BatchConcurrency,
	})
	httpapi.RegisterCountries(r, httpapi.CountriesDeps{Registry: d.Formatter.Registry()})

	// cached variant with write-behind archive
	httpv1.RegisterFormat(r, httpv1.FormatDeps{
		Formatter: d.Formatter,
		Cache:     d.Cache,
		Archive:   d.Archive,
		Store:     d.Store,
		Metrics:   d.Metrics,
		Logger:    d.Logger,
	})

	return r
}
