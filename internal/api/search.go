package api

import (
	"net/http"
	"strings"

	"github.com/cwoolley/playbook/internal/cache"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"github.com/cwoolley/playbook/internal/search"
)

// firstParam returns the first non-empty query parameter among names.
func firstParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) liveSearch(w http.ResponseWriter, r *http.Request) {
	req := search.Request{
		Query:          firstParam(r, "q", "query"),
		FolderID:       firstParam(r, "folderId"),
		SelectedFolder: firstParam(r, "selectedFolder"),
		FileType:       firstParam(r, "fileType", "selectedFileType"),
		NameFilter:     firstParam(r, "nameFilter", "fileNameFilter"),
		PageToken:      firstParam(r, "pageToken"),
	}
	if req.FolderID == "" {
		req.FolderID = h.opts.RootFolderID
	}

	p, s, err := h.sessionProvider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	req.Owner = cache.Owner(s.AccessToken())
	res, err := h.deps.Search.Live(r.Context(), p, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := decodeJSON(w, r, maxUploadBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if req.FolderID == "" {
		req.FolderID = h.opts.RootFolderID
	}

	p, err := h.provider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := h.deps.Search.Search(r.Context(), p, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type multiQueryRequest struct {
	Files       []domain.FileRecord `json:"files"`
	Queries     []string            `json:"queries"`
	AccessToken string              `json:"accessToken"`
}

func (h *Handler) multiQuerySearch(w http.ResponseWriter, r *http.Request) {
	var req multiQueryRequest
	if err := decodeJSON(w, r, maxBatchBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	terms := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if t := strings.TrimSpace(q); t != "" {
			terms = append(terms, t)
		}
	}

	p, err := h.provider(r, req.AccessToken)
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := h.deps.Search.MatchAllTerms(r.Context(), p, req.Files, terms)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) parent(r *http.Request) string {
	if p := firstParam(r, "parent", "folderId"); p != "" {
		return p
	}
	return h.opts.RootFolderID
}

func (h *Handler) folders(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	res, err := drive.ListFolders(r.Context(), p, h.parent(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if res.Folders == nil {
		res.Folders = []domain.FileRecord{}
	}
	if res.Shared == nil {
		res.Shared = []domain.FileRecord{}
	}
	writeJSON(w, http.StatusOK, res)
}

type filesResponse struct {
	Files         []domain.FileRecord `json:"files"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
}

func (h *Handler) files(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := drive.ListFiles(r.Context(), p, h.parent(r), firstParam(r, "pageToken"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if page.Files == nil {
		page.Files = []domain.FileRecord{}
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: page.Files, NextPageToken: page.NextPageToken})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r, "")
	if err != nil {
		handleError(w, r, err)
		return
	}
	st, err := drive.FolderStats(r.Context(), p, h.parent(r), h.now())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) analytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Search.Analytics().Stats())
}

type verifyRequest struct {
	Email string `json:"email"`
}

type verifyResponse struct {
	Email   string `json:"email"`
	Allowed bool   `json:"allowed"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, maxUploadBody, &req); err != nil {
		handleError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		handleError(w, r, domain.NewValidation("email", "is required"))
		return
	}
	if h.opts.Allowed != nil && !h.opts.Allowed(email) {
		writeJSON(w, http.StatusUnauthorized, verifyResponse{
			Email: email,
			Error: "Invalid email address. Please use an authorized email.",
		})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Email: email, Allowed: true})
}
