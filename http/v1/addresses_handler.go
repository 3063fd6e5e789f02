package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/address-formatter/http"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/store"
)

const maxListLimit = 200

// Reader serves archived addresses; *store.Store implements it.
type Reader interface {
	Get(ctx context.Context, requestKey string) (store.Record, error)
	ListByCountry(ctx context.Context, countryCode string, limit int) ([]store.Record, error)
}

type addressView struct {
	ID          string            `json:"id"`
	RequestKey  string            `json:"request_key"`
	CountryCode string            `json:"country_code"`
	Components  map[string]string `json:"components"`
	Formatted   string            `json:"formatted"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func viewOf(rec store.Record) addressView {
	return addressView{
		ID:          rec.ID,
		RequestKey:  rec.RequestKey,
		CountryCode: rec.CountryCode,
		Components:  rec.Components,
		Formatted:   rec.Formatted,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func getAddress(st Reader, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "key")
		rec, err := st.Get(req.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			m.IncrementError(httpapi.CodeNotFound)
			httpapi.WriteError(w, req, http.StatusNotFound, httpapi.CodeNotFound, "no archived address for "+key)
			return
		}
		if err != nil {
			m.IncrementError(httpapi.CodeStoreFailed)
			logger.ErrorContext(req.Context(), "archive lookup failed", "request_key", key, "error", err)
			httpapi.WriteError(w, req, http.StatusInternalServerError, httpapi.CodeStoreFailed, "")
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "address": viewOf(rec)})
	}
}

func listAddresses(st Reader, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		cc := strings.ToUpper(strings.TrimSpace(q.Get("country")))
		if len(cc) != 2 {
			m.IncrementError(httpapi.CodeInvalidCountryCode)
			httpapi.WriteError(w, req, http.StatusBadRequest, httpapi.CodeInvalidCountryCode, "country must be a two-letter code")
			return
		}
		limit := 0
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxListLimit {
				m.IncrementError(httpapi.CodeInvalidLimit)
				httpapi.WriteError(w, req, http.StatusBadRequest, httpapi.CodeInvalidLimit,
					"limit must be between 1 and "+strconv.Itoa(maxListLimit))
				return
			}
			limit = n
		}

		recs, err := st.ListByCountry(req.Context(), cc, limit)
		if err != nil {
			m.IncrementError(httpapi.CodeStoreFailed)
			logger.ErrorContext(req.Context(), "archive list failed", "country_code", cc, "error", err)
			httpapi.WriteError(w, req, http.StatusInternalServerError, httpapi.CodeStoreFailed, "")
			return
		}
		views := make([]addressView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, viewOf(rec))
		}
		render.JSON(w, req, map[string]any{"ok": true, "country_code": cc, "addresses": views})
	}
}
