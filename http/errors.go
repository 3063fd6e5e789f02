package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/yourorg/address-formatter/internal/formatter"
)

// Error codes returned in the "error" field.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeMissingCountryCode = "missing_country_code"
	CodeInvalidCountryCode = "invalid_country_code"
	CodeInvalidOutput      = "invalid_output"
	CodeTooManyItems       = "too_many_items"
	CodeNotFound           = "not_found"
	CodeInvalidLimit       = "invalid_limit"
	CodeStoreFailed        = "store_failed"
	CodeCanceled           = "canceled"
	CodeInternal           = "format_failed"
)

// WriteError renders the JSON error envelope.
func WriteError(w http.ResponseWriter, req *http.Request, status int, code string, detail string) {
	body := map[string]any{"error": code}
	if detail != "" {
		body["detail"] = detail
	}
	render.Status(req, status)
	render.JSON(w, req, body)
}

// Classify maps a formatter error to a status and error code.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, formatter.ErrMalformedInput):
		return http.StatusBadRequest, CodeInvalidJSON
	case errors.Is(err, formatter.ErrMissingCountryCode):
		return http.StatusBadRequest, CodeMissingCountryCode
	case errors.Is(err, formatter.ErrInvalidCountryCode):
		return http.StatusBadRequest, CodeInvalidCountryCode
	case errors.Is(err, formatter.ErrInvalidOutput):
		return http.StatusBadRequest, CodeInvalidOutput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCanceled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
