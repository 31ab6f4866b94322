package drive

import (
	"context"
	"fmt"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/query"
)

const (
	// MaxFolderIDs caps the containers a single expansion collects.
	MaxFolderIDs = 1000
	// folderChunkSize keeps each parents clause within Drive's query length limit.
	folderChunkSize = 40
	// RootID is Drive's alias for the caller's root folder.
	RootID = "root"
)

const folderClause = "mimeType = '" + domain.MimeFolder + "' and trashed = false"

// ExpandFolders walks the folder tree under rootID breadth first and returns
// rootID followed by every descendant folder id. When a listing fails part
// way, the ids gathered so far are returned together with the error.
func ExpandFolders(ctx context.Context, p Provider, rootID string) ([]string, error) {
	ids := []string{rootID}
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		var next []string
		for start := 0; start < len(frontier); start += folderChunkSize {
			end := min(start+folderChunkSize, len(frontier))
			q := folderClause + " and " + query.ParentsClause(frontier[start:end])

			children, err := listAll(ctx, p, q)
			for _, c := range children {
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				ids = append(ids, c.ID)
				next = append(next, c.ID)
				if len(ids) >= MaxFolderIDs {
					return ids, nil
				}
			}
			if err != nil {
				return ids, fmt.Errorf("expand folder %s: %w", rootID, err)
			}
		}
		frontier = next
	}
	return ids, nil
}

// listAll pages through q, returning what it has on error.
func listAll(ctx context.Context, p Provider, q string) ([]domain.FileRecord, error) {
	var (
		out   []domain.FileRecord
		token string
	)
	for {
		page, err := p.List(ctx, q, token, PageSize)
		if err != nil {
			return out, err
		}
		out = append(out, page.Files...)
		if page.NextPageToken == "" || len(out) >= MaxFolderIDs {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// Folders holds the folders directly inside a parent. At the root, folders
// shared with the caller are listed separately.
type Folders struct {
	Folders []domain.FileRecord `json:"folders"`
	Shared  []domain.FileRecord `json:"shared"`
}

// ListFolders returns the child folders of parent.
func ListFolders(ctx context.Context, p Provider, parent string) (Folders, error) {
	own, err := listAll(ctx, p, folderClause+" and "+query.ParentsClause([]string{parent}))
	if err != nil {
		return Folders{}, err
	}
	out := Folders{Folders: own}
	if parent == RootID {
		shared, err := listAll(ctx, p, folderClause+" and sharedWithMe = true")
		if err != nil {
			return Folders{}, err
		}
		out.Shared = shared
	}
	return out, nil
}

const fileClause = "mimeType != '" + domain.MimeFolder + "' and trashed = false"

// ListFiles returns one page of the non-folder items inside parent.
func ListFiles(ctx context.Context, p Provider, parent, pageToken string) (Page, error) {
	return p.List(ctx, fileClause+" and "+query.ParentsClause([]string{parent}), pageToken, PageSize)
}

// Stats summarises a folder and the items shared with the caller.
type Stats struct {
	TotalFolders int   `json:"totalFolders"`
	TotalFiles   int   `json:"totalFiles"`
	NewFolders   int   `json:"newFolders"`
	NewFiles     int   `json:"newFiles"`
	TotalSize    int64 `json:"totalSize"`
}

// NewItemWindow is how recent an item must be to count as new.
const NewItemWindow = 7 * 24 * time.Hour

// FolderStats counts folders and files directly inside parent plus those
// shared with the caller. Native files do not contribute to TotalSize.
func FolderStats(ctx context.Context, p Provider, parent string, now time.Time) (Stats, error) {
	inParent := query.ParentsClause([]string{parent})
	queries := []struct {
		q       string
		folders bool
	}{
		{folderClause + " and " + inParent, true},
		{folderClause + " and sharedWithMe = true", true},
		{fileClause + " and " + inParent, false},
		{fileClause + " and sharedWithMe = true", false},
	}

	cutoff := now.Add(-NewItemWindow)
	var st Stats
	for _, qq := range queries {
		items, err := listAll(ctx, p, qq.q)
		if err != nil {
			return Stats{}, err
		}
		for _, it := range items {
			isNew := it.CreatedTime.After(cutoff)
			if qq.folders {
				st.TotalFolders++
				if isNew {
					st.NewFolders++
				}
				continue
			}
			st.TotalFiles++
			if isNew {
				st.NewFiles++
			}
			if n := it.SizeBytes(); n > 0 {
				st.TotalSize += n
			}
		}
	}
	return st, nil
}
