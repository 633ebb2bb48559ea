// Package api exposes the scheduler domain layer over HTTP.
//
// It is the validated-input boundary the domain core assumes: field
// syntax checks and the command safety filter live here, so every Spec
// and Patch reaching the manager is already well-formed.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/miem-project-2259/openvair/pkg/cronjob"
)

// JobService is the command surface the API needs from the domain
// layer. *cronjob.Manager satisfies it.
type JobService interface {
	CreateJob(ctx context.Context, spec cronjob.Spec) (*cronjob.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*cronjob.Job, error)
	ListJobs(ctx context.Context) ([]*cronjob.Job, error)
	EditJob(ctx context.Context, id uuid.UUID, patch cronjob.Patch) (*cronjob.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// Handler serves the jobs API.
type Handler struct {
	svc JobService
	log *slog.Logger
}

// NewHandler creates a Handler over the given service.
func NewHandler(svc JobService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Router mounts the jobs API on a chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/", h.createJob)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Patch("/", h.editJob)
			r.Delete("/", h.deleteJob)
		})
	})
	return r
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorCode(w, http.StatusBadRequest, "malformed_body", "request body is not valid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		respondErrorCode(w, http.StatusUnprocessableEntity, "validation_error", msg)
		return
	}
	job, err := h.svc.CreateJob(r.Context(), req.toSpec())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *Handler) editJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorCode(w, http.StatusBadRequest, "malformed_body", "request body is not valid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		respondErrorCode(w, http.StatusUnprocessableEntity, "validation_error", msg)
		return
	}
	job, err := h.svc.EditJob(r.Context(), id, req.toPatch())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteJob(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondErrorCode(w, http.StatusBadRequest, "invalid_id", "job id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
