package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cwoolley/playbook/internal/aggregate"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/query"
)

type createJobRequest struct {
	Query string              `json:"query"`
	Files []domain.FileRecord `json:"files"`
}

type createJobResponse struct {
	ID     string           `json:"id"`
	Status aggregate.Status `json:"status"`
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, maxBatchBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	terms, err := query.Parse(req.Query)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		handleError(w, r, domain.NewValidation("files", "select at least one file"))
		return
	}

	p, err := h.provider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	job := h.deps.Jobs.Start(h.jobCtx, p, h.deps.Registry, terms, req.Files)
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, createJobResponse{ID: job.ID, Status: job.Status})
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) getArtifact(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		handleError(w, r, domain.NewValidation("n", "must be an artifact index"))
		return
	}
	a, err := h.deps.Registry.Artifact(chi.URLParam(r, "id"), n)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeAttachment(w, a.Name, a.ContentType, a.Data)
}
