// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
)

// Envelope statuses. Clients branch on the status field rather than the
// HTTP status code: Failure is the expected negative outcome of a valid
// request, Error is a structural or security problem.
const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
	StatusError   = "Error"
)

// Response is the envelope wrapping every API payload.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, StatusError, "resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusMethodNotAllowed, StatusError, "method not allowed")
}

// writeEnvelope writes an enveloped JSON response.
func writeEnvelope(w http.ResponseWriter, code int, status string, data any) {
	writeJSON(w, code, Response{Status: status, Data: data})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = err
	}
}
