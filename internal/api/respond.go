package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/miem-project-2259/openvair/pkg/cronjob"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondErrorCode(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Code: code, Message: message})
}

// respondError maps domain sentinel errors onto HTTP statuses. Every
// failure reaches the client as a structured {code, message} payload.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cronjob.ErrJobNotFound):
		respondErrorCode(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, cronjob.ErrNameConflict):
		respondErrorCode(w, http.StatusConflict, "name_conflict", err.Error())
	case errors.Is(err, cronjob.ErrCyclicDependency):
		respondErrorCode(w, http.StatusUnprocessableEntity, "cyclic_dependency", err.Error())
	case errors.Is(err, cronjob.ErrValidation):
		respondErrorCode(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, cronjob.ErrBackendWrite), errors.Is(err, cronjob.ErrBackendRead),
		errors.Is(err, cronjob.ErrJobCreationFailed):
		h.log.ErrorContext(r.Context(), "scheduler backend failure",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respondErrorCode(w, http.StatusInternalServerError, "backend_failure", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "unhandled scheduler error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		respondErrorCode(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
