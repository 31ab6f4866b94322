// Package drive talks to Google Drive: listing, downloading, exporting,
// paginated search and folder expansion.
package drive

import (
	"context"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
)

// Page is one listing response.
type Page struct {
	Files         []domain.FileRecord
	NextPageToken string
}

// Provider is the storage service the pipeline reads from.
type Provider interface {
	// List runs a Drive query and returns one page of results.
	List(ctx context.Context, q, pageToken string, pageSize int64) (Page, error)
	// Download fetches raw bytes, failing when the file exceeds limit bytes.
	Download(ctx context.Context, id string, limit int64) ([]byte, error)
	// Export converts a native document to mimeType.
	Export(ctx context.Context, id, mimeType string) ([]byte, error)
	// Describe returns the file's description, possibly empty.
	Describe(ctx context.Context, id string) (string, error)
}

// Timeouts bound each provider call.
type Timeouts struct {
	List     time.Duration
	Folders  time.Duration
	Download time.Duration
	Metadata time.Duration
}

// DefaultTimeouts are applied when a Timeouts field is zero.
var DefaultTimeouts = Timeouts{
	List:     30 * time.Second,
	Folders:  15 * time.Second,
	Download: 60 * time.Second,
	Metadata: 5 * time.Second,
}

func (t Timeouts) withDefaults() Timeouts {
	if t.List <= 0 {
		t.List = DefaultTimeouts.List
	}
	if t.Folders <= 0 {
		t.Folders = DefaultTimeouts.Folders
	}
	if t.Download <= 0 {
		t.Download = DefaultTimeouts.Download
	}
	if t.Metadata <= 0 {
		t.Metadata = DefaultTimeouts.Metadata
	}
	return t
}
