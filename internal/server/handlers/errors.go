package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Error codes used in HTTP error bodies.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code, message and optional details.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError writes body as JSON with the given status.
func RespondWithError(w http.ResponseWriter, status int, body ErrorBody) {
	writeJSON(w, status, ErrorResponse{Error: body})
}

// NotFound replies 404 with a JSON error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, http.StatusNotFound, ErrorBody{
		Code:    CodeNotFound,
		Message: "no route for " + r.URL.Path,
	})
}

// MethodNotAllowed replies 405 with a JSON error body.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, http.StatusMethodNotAllowed, ErrorBody{
		Code:    CodeMethodNotAllowed,
		Message: r.Method + " is not allowed on " + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSON writes v as a JSON reply.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}
