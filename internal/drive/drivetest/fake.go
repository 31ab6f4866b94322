// Package drivetest provides an in-memory drive.Provider for tests.
package drivetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
)

// Fake serves canned content. ListFn answers List; the maps answer the
// per-file calls, with Errs taking precedence.
type Fake struct {
	mu sync.Mutex

	ListFn       func(q, pageToken string) (drive.Page, error)
	Files        map[string][]byte
	Exports      map[string][]byte
	Descriptions map[string]string
	Errs         map[string]error

	Queries   []string
	Downloads []string
}

var _ drive.Provider = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Files:        map[string][]byte{},
		Exports:      map[string][]byte{},
		Descriptions: map[string]string{},
		Errs:         map[string]error{},
	}
}

func (f *Fake) List(_ context.Context, q, pageToken string, _ int64) (drive.Page, error) {
	f.mu.Lock()
	f.Queries = append(f.Queries, q)
	fn := f.ListFn
	f.mu.Unlock()
	if fn == nil {
		return drive.Page{}, nil
	}
	return fn(q, pageToken)
}

func (f *Fake) Download(ctx context.Context, id string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downloads = append(f.Downloads, id)
	if err := f.Errs[id]; err != nil {
		return nil, err
	}
	data, ok := f.Files[id]
	if !ok {
		return nil, fmt.Errorf("files.get %s: %w", id, domain.ErrNotFound)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, domain.ErrFileTooLarge
	}
	return data, nil
}

func (f *Fake) Export(ctx context.Context, id, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downloads = append(f.Downloads, id)
	if err := f.Errs[id]; err != nil {
		return nil, err
	}
	data, ok := f.Exports[id]
	if !ok {
		return nil, fmt.Errorf("files.export %s: %w", id, domain.ErrNotFound)
	}
	return data, nil
}

func (f *Fake) Describe(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Descriptions[id], nil
}

// StaticList answers every List call with files on a single page.
func StaticList(files ...domain.FileRecord) func(string, string) (drive.Page, error) {
	return func(string, string) (drive.Page, error) {
		return drive.Page{Files: files}, nil
	}
}
