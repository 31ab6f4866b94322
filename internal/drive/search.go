package drive

import (
	"context"

	"github.com/cwoolley/playbook/internal/domain"
)

const (
	// PageSize is the page size for full searches and folder walks.
	PageSize = 100
	// LivePageSize is the page size for as-you-type searches.
	LivePageSize = 50
	// MaxSearchResults caps the files a full search accumulates.
	MaxSearchResults = 500
)

// SearchResult is the outcome of a paginated search.
type SearchResult struct {
	Files     []domain.FileRecord
	Truncated bool
}

// SearchAll follows continuation tokens until Drive reports no further
// page or limit files have been collected. A limit <= 0 means MaxSearchResults.
func SearchAll(ctx context.Context, p Provider, q string, limit int) (SearchResult, error) {
	if limit <= 0 {
		limit = MaxSearchResults
	}

	files := []domain.FileRecord{}
	var token string
	for {
		page, err := p.List(ctx, q, token, PageSize)
		if err != nil {
			return SearchResult{}, err
		}
		files = append(files, page.Files...)
		if len(files) >= limit {
			return SearchResult{Files: files[:limit], Truncated: len(files) > limit || page.NextPageToken != ""}, nil
		}
		if page.NextPageToken == "" {
			return SearchResult{Files: files}, nil
		}
		token = page.NextPageToken
	}
}

// ListPage fetches a single page.
func ListPage(ctx context.Context, p Provider, q, pageToken string, pageSize int64) (Page, error) {
	if pageSize <= 0 {
		pageSize = LivePageSize
	}
	return p.List(ctx, q, pageToken, pageSize)
}
