// Package recommend maps the backend's terminal job payload into the
// client's result shape and renders it for display. Pure mapping, no I/O.
package recommend

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RawResult is the backend's terminal payload as delivered on the status
// endpoint, snake_case fields included.
type RawResult struct {
	ID              string     `json:"id"`
	UserName        string     `json:"user_name"`
	ExamCode        string     `json:"exam_code"`
	Content         string     `json:"content"`
	RecommendedJobs []RawMajor `json:"recommended_jobs"`
}

// RawMajor is one recommended-major record. Order within RecommendedJobs is
// the backend's ranking and must be preserved.
type RawMajor struct {
	Faculty   string `json:"faculty"`
	Major1    string `json:"major_1"`
	Major2    string `json:"major_2"`
	Major3    string `json:"major_3"`
	Reasoning string `json:"reasoning"`
}

// Result is the normalized in-memory record. Immutable once produced.
type Result struct {
	ID              uuid.UUID
	UserName        string
	Code            string
	Content         string
	RecommendedJobs []RecommendedJob
}

// RecommendedJob mirrors RawMajor with language-neutral field names.
type RecommendedJob struct {
	Faculty   string
	Major1    string
	Major2    string
	Major3    string
	Reasoning string
}

const divider = "------------------------------"

// Transform normalizes a terminal payload. The record order is carried over
// unchanged.
func Transform(raw *RawResult) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("recommend: nil payload")
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return nil, fmt.Errorf("recommend: invalid result id %q: %w", raw.ID, err)
	}
	jobs := make([]RecommendedJob, 0, len(raw.RecommendedJobs))
	for _, m := range raw.RecommendedJobs {
		jobs = append(jobs, RecommendedJob{
			Faculty:   m.Faculty,
			Major1:    m.Major1,
			Major2:    m.Major2,
			Major3:    m.Major3,
			Reasoning: m.Reasoning,
		})
	}
	return &Result{
		ID:              id,
		UserName:        raw.UserName,
		Code:            raw.ExamCode,
		Content:         raw.Content,
		RecommendedJobs: jobs,
	}, nil
}

// Render produces the human-readable listing: rank, faculty, the three
// ranked majors and the reasoning per record, divider-separated, in the
// received order.
func Render(r *Result) string {
	if r == nil || len(r.RecommendedJobs) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(r.RecommendedJobs))
	for i, job := range r.RecommendedJobs {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s\n", i+1, job.Faculty)
		fmt.Fprintf(&b, "   - %s\n", job.Major1)
		fmt.Fprintf(&b, "   - %s\n", job.Major2)
		fmt.Fprintf(&b, "   - %s\n", job.Major3)
		fmt.Fprintf(&b, "   %s", job.Reasoning)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n"+divider+"\n")
}
