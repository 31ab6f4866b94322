package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cwoolley/playbook/internal/auth"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// newTestClient points an APIClient at a fake Drive REST endpoint.
func newTestClient(t *testing.T, h http.Handler, opts ...ClientOption) *APIClient {
	t.Helper()
	return newTestClientWithSource(t, h, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), opts...)
}

// newTestClientWithSource keeps the client's own HTTP options and only
// redirects the endpoint, so requests go through the real auth transport.
func newTestClientWithSource(t *testing.T, h http.Handler, ts oauth2.TokenSource, opts ...ClientOption) *APIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	orig := createDriveService
	createDriveService = func(ctx context.Context, o ...option.ClientOption) (*drive.Service, error) {
		return drive.NewService(ctx, append(o, option.WithEndpoint(srv.URL+"/"))...)
	}
	t.Cleanup(func() { createDriveService = orig })

	c, err := NewAPIClient(context.Background(), ts, opts...)
	require.NoError(t, err)
	return c
}

type refresherFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return f(ctx, refreshToken)
}

func writeDriveError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, msg)
}

func TestAPIClient_List_ParsesFilesAndSendsParams(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "name contains 'x'", q.Get("q"))
		assert.Equal(t, "100", q.Get("pageSize"))
		assert.Equal(t, "tok-1", q.Get("pageToken"))
		assert.Equal(t, "allDrives", q.Get("corpora"))
		assert.Equal(t, "true", q.Get("supportsAllDrives"))
		assert.Equal(t, "true", q.Get("includeItemsFromAllDrives"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"nextPageToken": "tok-2",
			"files": []map[string]any{
				{"id": "a", "name": "PO 2024.docx", "mimeType": domain.MimeOpenXMLDoc, "size": "2048", "modifiedTime": "2024-03-01T10:00:00Z"},
				{"id": "b", "name": "Notes", "mimeType": domain.MimeNativeDoc, "modifiedTime": "2024-03-02T10:00:00Z"},
			},
		})
	}))

	page, err := c.List(context.Background(), "name contains 'x'", "tok-1", PageSize)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", page.NextPageToken)
	require.Len(t, page.Files, 2)
	assert.Equal(t, "PO 2024.docx", page.Files[0].Name)
	assert.Equal(t, int64(2048), page.Files[0].SizeBytes())
	assert.Equal(t, 2024, page.Files[0].ModifiedTime.Year())
	assert.Nil(t, page.Files[1].Size, "native files have no size")
}

func TestAPIClient_List_TeamDrive(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "drive", r.URL.Query().Get("corpora"))
		assert.Equal(t, "team-1", r.URL.Query().Get("driveId"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"files":[]}`)
	}), WithTeamDrive("team-1"))

	_, err := c.List(context.Background(), "trashed = false", "", PageSize)
	require.NoError(t, err)
}

func TestAPIClient_ClassifiesErrors(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, domain.ErrAuthExpired},
		{http.StatusInternalServerError, domain.ErrTransient},
		{http.StatusTooManyRequests, domain.ErrTransient},
		{http.StatusNotFound, domain.ErrProvider},
		{http.StatusForbidden, domain.ErrProvider},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeDriveError(w, tc.code, "boom")
			}))
			_, err := c.List(context.Background(), "q", "", PageSize)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAPIClient_Download(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/doc-1", r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		fmt.Fprint(w, "hello world")
	}))

	data, err := c.Download(context.Background(), "doc-1", 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestAPIClient_Download_TooLarge(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 64))
	}))

	_, err := c.Download(context.Background(), "doc-1", 16)
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestAPIClient_Export(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/doc-1/export", r.URL.Path)
		assert.Equal(t, domain.MimeOpenXMLDoc, r.URL.Query().Get("mimeType"))
		fmt.Fprint(w, "PK...")
	}))

	data, err := c.Export(context.Background(), "doc-1", domain.MimeOpenXMLDoc)
	require.NoError(t, err)
	assert.Equal(t, "PK...", string(data))
}

func TestAPIClient_Describe(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/doc-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"doc-1","description":"Quarterly enquiry log"}`)
	}))

	desc, err := c.Describe(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly enquiry log", desc)
}

func TestAPIClient_SendsBearerFromTokenSource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"files":[]}`)
	}))

	_, err := c.List(context.Background(), "q", "", PageSize)
	require.NoError(t, err)
}

func TestAPIClient_RefreshedSessionTokenReachesDrive(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, got)
		mu.Unlock()
		if got != "Bearer new" {
			writeDriveError(w, http.StatusUnauthorized, "Invalid Credentials")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"files":[{"id":"a","name":"a.docx"}]}`)
	})

	session := auth.NewSession(&oauth2.Token{AccessToken: "old", RefreshToken: "r1"},
		refresherFunc(func(_ context.Context, refreshToken string) (*oauth2.Token, error) {
			assert.Equal(t, "r1", refreshToken)
			return &oauth2.Token{AccessToken: "new"}, nil
		}))
	c := newTestClientWithSource(t, h, session)
	p := NewResilient(c, session.Refresh, retry.Policy{Attempts: 1})

	page, err := p.List(context.Background(), "q", "", PageSize)
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	assert.Equal(t, "new", session.AccessToken())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer old", "Bearer new"}, seen)
}

func TestNewAPIClient_ServiceError(t *testing.T) {
	orig := createDriveService
	createDriveService = func(context.Context, ...option.ClientOption) (*drive.Service, error) {
		return nil, fmt.Errorf("no credentials")
	}
	t.Cleanup(func() { createDriveService = orig })

	_, err := NewAPIClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{}))
	assert.ErrorContains(t, err, "create drive service")
}
