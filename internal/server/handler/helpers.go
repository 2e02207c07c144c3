// Package handler implements the HTTP endpoints the dashboard consumes.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// writeJSON marshals v and writes it with status. Encoding failures become a
// plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"message":"internal server error","error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends {message, error} with the status derived from err.
func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, statusFor(err), errorResponse{Message: message, Error: err.Error()})
}

// statusFor maps sentinel errors to HTTP status codes. Anything unclassified,
// including pipeline failures, is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// writePipelineError answers a failed scan or execution. Only request
// validation is a client error; everything past it is a generic 500.
func writePipelineError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Message: message, Error: err.Error()})
}

// queryFloat parses an optional float query parameter. It returns nil when
// the parameter is absent, so an explicit 0 stays distinguishable.
func queryFloat(r *http.Request, name string) (*float64, error) {
	q := r.URL.Query()
	if !q.Has(name) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(q.Get(name), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be a finite number", domain.ErrInvalidInput, name)
	}
	return &f, nil
}

// queryLimit parses ?limit= with a default and an upper bound.
func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
