package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getIndex(t *testing.T) (*http.Response, string) {
	t.Helper()
	srv := httptest.NewServer(Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler_ServesHTML(t *testing.T) {
	resp, html := getIndex(t)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "<style")
}

func TestHandler_SearchControls(t *testing.T) {
	_, html := getIndex(t)

	assert.Contains(t, html, `id="q"`, "should have a search input")
	assert.Contains(t, html, `<option value="" selected>All files</option>`, "all file types selected by default")
	assert.Contains(t, html, `value="documents"`)
	assert.Contains(t, html, `value="spreadsheets"`)
	assert.Contains(t, html, `value="enquiry"`)
	assert.Contains(t, html, `value="po"`)
}

func TestHandler_UsesAPI(t *testing.T) {
	_, html := getIndex(t)

	assert.Contains(t, html, "<script")
	for _, path := range []string{"/live-search?", "/api/verify", `"/jobs"`, "/analytics", "/folders", "X-User-Email"} {
		assert.Contains(t, html, path)
	}
}

func TestHandler_UnknownAsset(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
