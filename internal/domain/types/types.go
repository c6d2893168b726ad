// Package types contains the wire types shared by the HTTP API and its clients.
package types

import (
	"time"

	"github.com/okian/storyline/internal/domain/model"
)

// StatusDuplicate is reported when a job id was already submitted.
const StatusDuplicate = "duplicate"

// Message is the body of informational and error responses.
type Message struct {
	Message string `json:"message" yaml:"message"`
}

// TimelineRequest is the body of POST /timeline.
type TimelineRequest struct {
	Query string `json:"query"`
}

// TimelineResponse pairs a query with its generated timeline.
type TimelineResponse struct {
	Query    string         `json:"query" yaml:"query"`
	Timeline model.Timeline `json:"timeline" yaml:"timeline"`
}

// JobRequest is the body of POST /jobs. RequestID doubles as the job id
// and makes resubmission idempotent.
type JobRequest struct {
	Query     string `json:"query"`
	RequestID string `json:"request_id,omitempty"`
}

// JobAccepted acknowledges a submitted job.
type JobAccepted struct {
	JobID  string `json:"job_id" yaml:"job_id"`
	Status string `json:"status" yaml:"status"`
}

// JobView is the public state of a job.
type JobView struct {
	JobID     string         `json:"job_id" yaml:"job_id"`
	Query     string         `json:"query" yaml:"query"`
	Status    string         `json:"status" yaml:"status"`
	Timeline  model.Timeline `json:"timeline" yaml:"timeline"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" yaml:"updated_at"`
}

// NewJobView converts a stored job. Finished jobs always carry a
// non-nil timeline so an empty result encodes as [].
func NewJobView(j model.Job) JobView { //nolint:gocritic // hugeParam: converted by value
	v := JobView{
		JobID:     j.ID,
		Query:     j.Query,
		Status:    string(j.Status),
		Timeline:  j.Timeline,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	if j.Status == model.JobDone && v.Timeline == nil {
		v.Timeline = model.Timeline{}
	}
	return v
}

// Finished reports whether the job reached done or failed.
func (v JobView) Finished() bool { //nolint:gocritic // hugeParam: read-only view
	return model.JobStatus(v.Status).Finished()
}
