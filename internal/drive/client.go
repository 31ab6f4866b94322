package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	listFields     googleapi.Field = "nextPageToken, files(id, name, mimeType, size, modifiedTime, createdTime)"
	describeFields googleapi.Field = "id, description"
	// exportLimit mirrors Drive's own cap on exported content.
	exportLimit = 10 << 20
)

// APIClient implements Provider on the Drive v3 API.
type APIClient struct {
	service     *drive.Service
	teamDriveID string
	timeouts    Timeouts
}

// ClientOption configures an APIClient.
type ClientOption func(*APIClient)

// WithTeamDrive restricts listings to one shared drive.
func WithTeamDrive(id string) ClientOption {
	return func(c *APIClient) { c.teamDriveID = id }
}

// WithTimeouts overrides the per-call timeouts.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *APIClient) { c.timeouts = t.withDefaults() }
}

// createDriveService creates a Drive API service. Overridden in tests.
var createDriveService = func(ctx context.Context, opts ...option.ClientOption) (*drive.Service, error) {
	return drive.NewService(ctx, opts...)
}

// NewAPIClient creates a Drive client whose requests authenticate through
// tokenSource. The source is asked for a token on every request, so a
// refreshed session token applies to the very next call.
func NewAPIClient(ctx context.Context, tokenSource oauth2.TokenSource, opts ...ClientOption) (*APIClient, error) {
	httpClient := &http.Client{Transport: &oauth2.Transport{Source: tokenSource}}
	srv, err := createDriveService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	c := &APIClient{
		service:  srv,
		timeouts: DefaultTimeouts,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func isFolderQuery(q string) bool {
	return strings.HasPrefix(q, "mimeType = '"+domain.MimeFolder+"'")
}

func (c *APIClient) List(ctx context.Context, q, pageToken string, pageSize int64) (Page, error) {
	timeout := c.timeouts.List
	if isFolderQuery(q) {
		timeout = c.timeouts.Folders
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call := c.service.Files.List().
		Q(q).
		Fields(listFields).
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if c.teamDriveID != "" {
		call = call.Corpora("drive").DriveId(c.teamDriveID)
	} else {
		call = call.Corpora("allDrives")
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return Page{}, classify("files.list", err)
	}

	files := make([]domain.FileRecord, len(resp.Files))
	for i, f := range resp.Files {
		files[i] = toRecord(f)
	}
	return Page{Files: files, NextPageToken: resp.NextPageToken}, nil
}

func (c *APIClient) Download(ctx context.Context, id string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Download)
	defer cancel()

	resp, err := c.service.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify("files.get", err)
	}
	return readLimited(resp, limit)
}

func (c *APIClient) Export(ctx context.Context, id, mimeType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Download)
	defer cancel()

	resp, err := c.service.Files.Export(id, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, classify("files.export", err)
	}
	return readLimited(resp, exportLimit)
}

func (c *APIClient) Describe(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Metadata)
	defer cancel()

	f, err := c.service.Files.Get(id).Fields(describeFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", classify("files.get", err)
	}
	return f.Description, nil
}

func readLimited(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w: %w", domain.ErrTransient, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %dMB", domain.ErrFileTooLarge, limit>>20)
	}
	return data, nil
}

func toRecord(f *drive.File) domain.FileRecord {
	rec := domain.FileRecord{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
	}
	if !strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		size := f.Size
		rec.Size = &size
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		rec.ModifiedTime = t
	}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		rec.CreatedTime = t
	}
	return rec
}

// classify maps Drive failures onto the domain error taxonomy.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrAuthExpired, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
		default:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrNoToken) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}
