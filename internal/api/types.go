package api

import (
	"encoding/json"
	"time"

	"majorpath.org/internal/credstore"
	"majorpath.org/internal/recommend"
)

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Job statuses reported by the status endpoint. completed and failed are
// terminal; once reached the job's outcome does not change.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// LoginResult carries the bearer token and the authenticated user.
type LoginResult struct {
	Token string          `json:"token"`
	User  *credstore.User `json:"user"`
}

// Submission is the process endpoint's acknowledgement of a new job.
type Submission struct {
	JobID                string `json:"job_id"`
	StatusURL            string `json:"status_url"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
}

// JobStatus is one snapshot from the status endpoint. Result is present only
// on a terminal completed status.
type JobStatus struct {
	Status       string               `json:"status"`
	Progress     int                  `json:"progress"`
	CurrentStep  string               `json:"current_step"`
	Result       *recommend.RawResult `json:"result,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s.Status == JobCompleted || s.Status == JobFailed
}

// CompanyProfile is the employer-facing profile record.
type CompanyProfile struct {
	Name        string `json:"name"`
	Industry    string `json:"industry"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
}
