package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/storyline/internal/domain/types"
	"github.com/okian/storyline/pkg/logger"
)

// JobsHandler serves asynchronous timeline jobs.
type JobsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps Dependencies, l logger.Logger) *JobsHandler {
	return &JobsHandler{deps: deps, logger: l}
}

// HandlePostJob handles POST /jobs requests.
func (h *JobsHandler) HandlePostJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_job"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req types.JobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing query")))
		return
	}

	job, duplicate, err := h.deps.Submit(r.Context(), req.RequestID, req.Query)
	if err != nil {
		status, _ := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error(r.Context(), "job submission failed", logger.Error(err))
		}
		writeKindError(w, WrapKind(op, kindOf(status), err))
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, types.JobAccepted{JobID: job.ID, Status: types.StatusDuplicate})
		return
	}
	writeJSON(w, http.StatusAccepted, types.JobAccepted{JobID: job.ID, Status: string(job.Status)})
}

// HandleGetJob handles GET /jobs/{id} requests.
func (h *JobsHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	job, err := h.deps.Job(r.Context(), id)
	if err != nil {
		status, _ := statusFor(err)
		writeKindError(w, WrapKind(op, kindOf(status), err))
		return
	}
	writeJSON(w, http.StatusOK, types.NewJobView(job))
}

func kindOf(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrBackpressure
	default:
		return ErrInternal
	}
}
