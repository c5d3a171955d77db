package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/record"
)

const maxBody = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors []string `json:"errors"`
}

// persistenceResponse reports a change that was applied in memory but not saved.
type persistenceResponse struct {
	Error  string `json:"error"`
	Record any    `json:"record,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err to a status code and body. rec, when not nil, is the
// record a failed save left in memory.
func writeError(w http.ResponseWriter, r *http.Request, err error, rec any) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: apperr.Messages(err)})
	case errors.Is(err, apperr.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrPersistence):
		slog.Warn("request applied but not persisted",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, persistenceResponse{Error: "changes could not be saved", Record: rec})
	default:
		slog.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// decodePatch reads a JSON object body as a field patch.
func decodePatch(w http.ResponseWriter, r *http.Request) (record.Patch, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var p record.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body must be a JSON object"))
		return nil, false
	}
	return p, true
}
