package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/address-formatter/http"
	"github.com/yourorg/address-formatter/internal/archive"
	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/redisx"
)

// Archiver accepts write-behind jobs; *archive.Queue implements it.
type Archiver interface {
	Enqueue(j archive.Job) bool
}

type FormatDeps struct {
	Formatter *formatter.Formatter
	Cache     *redisx.ResultCache // optional
	Archive   Archiver            // optional
	Store     Reader              // optional; enables the archive reads
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func RegisterFormat(r chi.Router, d FormatDeps) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Route("/v1/addresses", func(r chi.Router) {
		if d.Store != nil {
			r.Get("/", listAddresses(d.Store, d.Metrics, logger))
			r.Get("/{key}", getAddress(d.Store, d.Metrics, logger))
		}
		r.Post("/format", func(w http.ResponseWriter, req *http.Request) {
			var body httpapi.FormatRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				d.Metrics.IncrementError(httpapi.CodeInvalidJSON)
				httpapi.WriteError(w, req, http.StatusBadRequest, httpapi.CodeInvalidJSON, err.Error())
				return
			}
			output, err := body.OutputFormat()
			if err != nil {
				d.Metrics.IncrementError(httpapi.CodeInvalidOutput)
				httpapi.WriteError(w, req, http.StatusBadRequest, httpapi.CodeInvalidOutput, err.Error())
				return
			}
			pairs, err := body.Pairs()
			if err != nil {
				d.Metrics.IncrementError(httpapi.CodeInvalidJSON)
				httpapi.WriteError(w, req, http.StatusBadRequest, httpapi.CodeInvalidJSON, err.Error())
				return
			}
			ctx := req.Context()
			f := d.Formatter.With(body.Options()...)
			components := canon.Normalize(pairs)
			key := canon.Key(components, body.CountryCode,
				"abbreviate="+strconv.FormatBool(f.Abbreviates()),
				"append_country="+strconv.FormatBool(f.AppendsCountry()),
			)

			if d.Cache != nil {
				entry, hit, err := d.Cache.Lookup(ctx, key)
				switch {
				case err != nil:
					d.Metrics.IncrementCache("error")
					logger.WarnContext(ctx, "result cache lookup failed", "request_key", key, "error", err)
				case hit:
					d.Metrics.IncrementCache("hit")
					res := httpapi.Result{Formatted: entry.Formatted, CountryCode: entry.CountryCode}
					render.JSON(w, req, response("cache", key, res.Shape(output)))
					return
				default:
					d.Metrics.IncrementCache("miss")
				}
			}

			res, err := httpapi.FormatOne(ctx, f, d.Metrics, pairs, body.CountryCode, false)
			if err != nil {
				status, code := httpapi.Classify(err)
				d.Metrics.IncrementError(code)
				if status >= http.StatusInternalServerError {
					logger.ErrorContext(ctx, "format failed", "request_key", key, "error", err)
				}
				httpapi.WriteError(w, req, status, code, err.Error())
				return
			}

			if d.Cache != nil {
				if err := d.Cache.Store(ctx, key, redisx.Entry{Formatted: res.Formatted, CountryCode: res.CountryCode}); err != nil {
					logger.WarnContext(ctx, "result cache store failed", "request_key", key, "error", err)
				}
			}
			// write-behind: persist and publish
			if d.Archive != nil {
				job := archive.Job{
					RequestKey:  key,
					CountryCode: res.CountryCode,
					Components:  components.Map(),
					Formatted:   res.Formatted,
				}
				if !d.Archive.Enqueue(job) {
					d.Metrics.IncrementArchive("dropped")
				}
			}

			render.JSON(w, req, response("fresh", key, res.Shape(output)))
		})
	})
}

func response(source, key string, res httpapi.Result) map[string]any {
	resp := map[string]any{
		"ok":           true,
		"source":       source,
		"request_key":  key,
		"country_code": res.CountryCode,
	}
	if res.Lines != nil {
		resp["lines"] = res.Lines
	} else {
		resp["formatted"] = res.Formatted
	}
	return resp
}
