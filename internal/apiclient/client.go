// Package apiclient calls the playbook HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/cwoolley/playbook/internal/aggregate"
	"github.com/cwoolley/playbook/internal/analytics"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/search"
)

// EmailHeader matches the header the server's allow-list reads.
const EmailHeader = "X-User-Email"

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Hint)
	}
	return e.Message
}

// Unwrap maps the status code back to the domain sentinel.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return domain.ErrAuthExpired
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusBadGateway:
		return domain.ErrProvider
	case http.StatusUnprocessableEntity:
		return domain.ErrExtraction
	default:
		return nil
	}
}

// Client calls the playbook HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	email      string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as the bearer access token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithEmail identifies the caller to the allow-list.
func WithEmail(email string) Option {
	return func(c *Client) { c.email = email }
}

// New creates a Client targeting the given base URL.
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{baseURL: baseURL, httpClient: httpClient}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.email != "" {
		req.Header.Set(EmailHeader, c.email)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
			Hint  string `json:"hint"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("server returned %d", resp.StatusCode)}
		}
		return nil, &Error{Status: resp.StatusCode, Message: body.Error, Hint: body.Hint}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// LiveSearch fetches one page of results from /api/live-search.
func (c *Client) LiveSearch(ctx context.Context, req search.Request) (search.LiveResult, error) {
	params := url.Values{}
	params.Set("q", req.Query)
	for k, v := range map[string]string{
		"folderId":       req.FolderID,
		"selectedFolder": req.SelectedFolder,
		"fileType":       req.FileType,
		"nameFilter":     req.NameFilter,
		"pageToken":      req.PageToken,
	} {
		if v != "" {
			params.Set(k, v)
		}
	}
	var out search.LiveResult
	err := c.getJSON(ctx, http.MethodGet, "/api/live-search?"+params.Encode(), nil, &out)
	return out, err
}

// Search collects every match through /api/search.
func (c *Client) Search(ctx context.Context, req search.Request) (search.Result, error) {
	var out search.Result
	err := c.getJSON(ctx, http.MethodPost, "/api/search", req, &out)
	return out, err
}

// CreateJob starts an aggregation job and returns its id.
func (c *Client) CreateJob(ctx context.Context, query string, files []domain.FileRecord) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.getJSON(ctx, http.MethodPost, "/api/jobs", map[string]any{"query": query, "files": files}, &out)
	return out.ID, err
}

// Job returns the current state of a job.
func (c *Client) Job(ctx context.Context, id string) (aggregate.Job, error) {
	var out aggregate.Job
	err := c.getJSON(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// WaitJob polls a job every interval until it finishes. onUpdate, if not
// nil, sees every polled state.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration, onUpdate func(aggregate.Job)) (aggregate.Job, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		j, err := c.Job(ctx, id)
		if err != nil {
			return j, err
		}
		if onUpdate != nil {
			onUpdate(j)
		}
		if j.Status.Finished() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case <-t.C:
		}
	}
}

// Artifact downloads artifact n of a job and returns its file name and content.
func (c *Client) Artifact(ctx context.Context, id string, n int) (string, []byte, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%s/artifacts/%d", url.PathEscape(id), n), nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read artifact: %w", err)
	}
	name := fmt.Sprintf("artifact-%d.docx", n)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, data, nil
}

// Analytics returns the server's search statistics.
func (c *Client) Analytics(ctx context.Context) (analytics.Stats, error) {
	var out analytics.Stats
	err := c.getJSON(ctx, http.MethodGet, "/api/analytics", nil, &out)
	return out, err
}
