package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

// SessionsHandler serves persisted kernel session records.
type SessionsHandler struct {
	store sessionstore.Store
}

// NewSessionsHandler creates a handler over store.
func NewSessionsHandler(store sessionstore.Store) *SessionsHandler {
	return &SessionsHandler{store: store}
}

// List replies with every record, newest first.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, ErrorBody{
			Code:    CodeServiceUnavailable,
			Message: err.Error(),
		})
		return
	}
	if records == nil {
		records = []sessionstore.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// Get replies with the record named by the kernelID URL parameter.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kernelID := chi.URLParam(r, "kernelID")
	rec, err := h.store.Load(r.Context(), kernelID)
	switch {
	case sessionstore.IsNotFound(err):
		RespondWithError(w, http.StatusNotFound, ErrorBody{
			Code:    CodeNotFound,
			Message: "no session for kernel " + kernelID,
		})
	case err != nil:
		RespondWithError(w, http.StatusServiceUnavailable, ErrorBody{
			Code:    CodeServiceUnavailable,
			Message: err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}
