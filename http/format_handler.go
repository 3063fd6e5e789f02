package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/address-formatter/internal/canon"
	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/metrics"
)

const (
	defaultBatchConcurrency = 8
	defaultMaxBatchItems    = 1000
)

type FormatDeps struct {
	Formatter *formatter.Formatter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	BatchConcurrency int
	MaxBatchItems    int
}

// FormatRequest is one address to format. Components is a JSON object, or a
// string holding a relaxed JSON/YAML object. Abbreviate and AppendCountry
// override the server defaults when set. Output is "string" (default) or
// "array".
type FormatRequest struct {
	Components    json.RawMessage `json:"components"`
	CountryCode   string          `json:"country_code"`
	Abbreviate    *bool           `json:"abbreviate,omitempty"`
	AppendCountry *bool           `json:"append_country,omitempty"`
	Output        string          `json:"output,omitempty"`
}

// Pairs decodes the components in their given order.
func (r FormatRequest) Pairs() ([]canon.Pair, error) {
	raw := r.Components
	var s string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", formatter.ErrMalformedInput, err)
		}
		raw = json.RawMessage(s)
	}
	return canon.Decode(raw)
}

// Options turns the request overrides into formatter options.
func (r FormatRequest) Options() []formatter.Option {
	var opts []formatter.Option
	if r.Abbreviate != nil {
		opts = append(opts, formatter.WithAbbreviate(*r.Abbreviate))
	}
	if r.AppendCountry != nil {
		opts = append(opts, formatter.WithAppendCountry(*r.AppendCountry))
	}
	return opts
}

// OutputFormat parses the requested output shape.
func (r FormatRequest) OutputFormat() (formatter.Output, error) {
	return formatter.ParseOutput(r.Output)
}

// Result is the outcome of one format call.
type Result struct {
	Formatted   string            `json:"formatted,omitempty"`
	Lines       []string          `json:"lines,omitempty"`
	CountryCode string            `json:"country_code,omitempty"`
	Template    string            `json:"template,omitempty"`
	Components  map[string]string `json:"components,omitempty"`
	Error       string            `json:"error,omitempty"`
	Detail      string            `json:"detail,omitempty"`
}

// FormatOne formats already decoded components with f, which carries the
// request's options. With debug set, the chosen template and cleaned
// components are included in the result.
func FormatOne(ctx context.Context, f *formatter.Formatter, m *metrics.Metrics, pairs []canon.Pair, fallback string, debug bool) (Result, error) {
	start := time.Now()
	p, err := f.Prepare(ctx, pairs, fallback)
	if err != nil {
		return Result{}, err
	}
	out, err := f.Render(p)
	if err != nil {
		return Result{}, err
	}
	m.ObserveFormatLatency(time.Since(start))
	m.IncrementFormatted(p.CountryCode)

	res := Result{Formatted: out, CountryCode: p.CountryCode}
	if debug {
		res.Template = p.Template
		res.Components = p.Components.Map()
	}
	return res, nil
}

// Shape returns res laid out for o: an array result carries Lines in place
// of Formatted.
func (res Result) Shape(o formatter.Output) Result {
	if o == formatter.OutputArray && res.Error == "" {
		res.Lines = formatter.Lines(res.Formatted)
		res.Formatted = ""
	}
	return res
}

func formatRequest(ctx context.Context, f *formatter.Formatter, m *metrics.Metrics, body FormatRequest, debug bool) (Result, error) {
	output, err := body.OutputFormat()
	if err != nil {
		return Result{}, err
	}
	pairs, err := body.Pairs()
	if err != nil {
		return Result{}, err
	}
	if opts := body.Options(); len(opts) > 0 {
		f = f.With(opts...)
	}
	res, err := FormatOne(ctx, f, m, pairs, body.CountryCode, debug)
	if err != nil {
		return Result{}, err
	}
	return res.Shape(output), nil
}

func RegisterFormat(r chi.Router, d FormatDeps) {
	if d.BatchConcurrency <= 0 {
		d.BatchConcurrency = defaultBatchConcurrency
	}
	if d.MaxBatchItems <= 0 {
		d.MaxBatchItems = defaultMaxBatchItems
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Route("/format", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body FormatRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				d.Metrics.IncrementError(CodeInvalidJSON)
				WriteError(w, req, http.StatusBadRequest, CodeInvalidJSON, err.Error())
				return
			}
			debug, _ := strconv.ParseBool(req.URL.Query().Get("debug"))
			res, err := formatRequest(req.Context(), d.Formatter, d.Metrics, body, debug)
			if err != nil {
				status, code := Classify(err)
				d.Metrics.IncrementError(code)
				if status >= http.StatusInternalServerError {
					logger.ErrorContext(req.Context(), "format failed", "error", err)
				}
				WriteError(w, req, status, code, err.Error())
				return
			}
			resp := map[string]any{
				"ok":           true,
				"country_code": res.CountryCode,
			}
			if res.Lines != nil {
				resp["lines"] = res.Lines
			} else {
				resp["formatted"] = res.Formatted
			}
			if debug {
				resp["template"] = res.Template
				resp["components"] = res.Components
			}
			render.JSON(w, req, resp)
		})

		r.Post("/batch", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Items       []FormatRequest `json:"items"`
				CountryCode string          `json:"country_code"`
				Output      string          `json:"output"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				d.Metrics.IncrementError(CodeInvalidJSON)
				WriteError(w, req, http.StatusBadRequest, CodeInvalidJSON, err.Error())
				return
			}
			if _, err := formatter.ParseOutput(body.Output); err != nil {
				d.Metrics.IncrementError(CodeInvalidOutput)
				WriteError(w, req, http.StatusBadRequest, CodeInvalidOutput, err.Error())
				return
			}
			if len(body.Items) > d.MaxBatchItems {
				d.Metrics.IncrementError(CodeTooManyItems)
				WriteError(w, req, http.StatusBadRequest, CodeTooManyItems,
					fmt.Sprintf("at most %d items per batch", d.MaxBatchItems))
				return
			}

			results := make([]Result, len(body.Items))
			g, ctx := errgroup.WithContext(req.Context())
			g.SetLimit(d.BatchConcurrency)
			for i, item := range body.Items {
				i, item := i, item
				if item.CountryCode == "" {
					item.CountryCode = body.CountryCode
				}
				if item.Output == "" {
					item.Output = body.Output
				}
				g.Go(func() error {
					res, err := formatRequest(ctx, d.Formatter, d.Metrics, item, false)
					if err != nil {
						_, code := Classify(err)
						d.Metrics.IncrementError(code)
						res = Result{Error: code, Detail: err.Error()}
					}
					results[i] = res
					return nil
				})
			}
			_ = g.Wait()

			render.JSON(w, req, map[string]any{"ok": true, "results": results})
		})
	})
}
