// Package aggregate runs aggregation jobs: selected files are read in
// batches and merged into downloadable reports.
package aggregate

import (
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/report"
)

// Status is the lifecycle stage of a job.
type Status string

const (
	StatusInitializing        Status = "initializing"
	StatusProcessingExcel     Status = "processing_excel"
	StatusProcessingDocuments Status = "processing_documents"
	StatusCreatingOutput      Status = "creating_output"
	StatusComplete            Status = "complete"
	StatusError               Status = "error"
)

// Finished reports whether the job has stopped.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusError
}

// Artifact is a generated report.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// Job is one aggregation request and its progress.
type Job struct {
	ID         string              `json:"id"`
	Query      []string            `json:"query"`
	Files      []domain.FileRecord `json:"-"`
	TotalFiles int                 `json:"totalFiles"`
	Progress   int                 `json:"progress"`
	Status     Status              `json:"status"`
	Artifacts  []Artifact          `json:"artifacts"`
	Failures   []report.Failure    `json:"failures"`
	Err        string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Snapshot returns a copy whose slices are not shared with j.
func (j Job) Snapshot() Job {
	c := j
	c.Query = append([]string(nil), j.Query...)
	c.Files = append([]domain.FileRecord(nil), j.Files...)
	c.Artifacts = append([]Artifact(nil), j.Artifacts...)
	c.Failures = append([]report.Failure(nil), j.Failures...)
	return c
}
