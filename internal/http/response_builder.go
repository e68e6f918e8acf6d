// Package http exposes the ledger over a JSON API.
//
// This file holds the response envelope helpers and the mapping from ledger
// errors to HTTP status codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"sitefin/internal/core"
	applog "sitefin/internal/log"
	"sitefin/internal/services"
)

// Error codes returned in the "code" field of error envelopes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeSiteNotFound = "SITE_NOT_FOUND"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{Status: "success", Message: message})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Status: "error", Code: code, Message: message})
}

// mapDomainError translates a ledger error into status, code and a message
// safe to show the caller.
func mapDomainError(err error) (int, string, string) {
	switch {
	case core.IsValidation(err):
		var ve *core.ValidationError
		errors.As(err, &ve)
		return http.StatusBadRequest, CodeValidation, ve.Error()
	case errors.Is(err, core.ErrSiteNotFound):
		return http.StatusNotFound, CodeSiteNotFound, "site not found"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "not found"
	case errors.Is(err, services.ErrCounterpartsChanged):
		return http.StatusConflict, CodeConflict, "site changed concurrently, retry"
	case errors.Is(err, core.ErrTransactionApproved):
		return http.StatusConflict, CodeConflict, core.ErrTransactionApproved.Error()
	case errors.Is(err, core.ErrTotalsOverflow):
		return http.StatusConflict, CodeConflict, "site totals would exceed the supported range"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

// respondError logs server-side failures and writes the error envelope.
func respondError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, msg := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		applog.LogError(r.Context(), "Ledger operation failed", err, operation, applog.ErrorTypeInternal,
			applog.NewFields().WithComponent(applog.ComponentHTTP).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery))
	}
	writeError(w, status, code, msg)
}
