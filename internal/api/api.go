// Package api serves the JSON HTTP API used by the dashboard and the CLI.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/cwoolley/playbook/internal/aggregate"
	"github.com/cwoolley/playbook/internal/auth"
	"github.com/cwoolley/playbook/internal/batch"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"github.com/cwoolley/playbook/internal/extract"
	"github.com/cwoolley/playbook/internal/retry"
	"github.com/cwoolley/playbook/internal/search"
)

const (
	// maxUploadBody bounds single-file requests; base64 inflates a 10MB file
	// to roughly 13.4MB.
	maxUploadBody = 15 << 20
	// maxBatchBody bounds requests carrying several files.
	maxBatchBody = 64 << 20
)

// ProviderFactory opens a Drive provider acting for the session.
type ProviderFactory func(ctx context.Context, s *auth.Session) (drive.Provider, error)

// DriveProviders opens Drive API clients that retry transient failures
// and refresh the session once on authorization failures.
func DriveProviders(teamDriveID string, policy retry.Policy) ProviderFactory {
	return func(ctx context.Context, s *auth.Session) (drive.Provider, error) {
		var opts []drive.ClientOption
		if teamDriveID != "" {
			opts = append(opts, drive.WithTeamDrive(teamDriveID))
		}
		c, err := drive.NewAPIClient(ctx, s, opts...)
		if err != nil {
			return nil, err
		}
		return drive.NewResilient(c, s.Refresh, policy), nil
	}
}

// Options holds request handling settings.
type Options struct {
	RootFolderID string
	// Allowed reports whether an email may use the API. Nil admits everyone.
	Allowed      func(email string) bool
	BatchSize    int
	MaxFileBytes int64
	TrimMarker   string
	TrimMaxLines int
}

// Deps are the services behind the handlers.
type Deps struct {
	Providers ProviderFactory
	Refresher auth.Refresher
	Search    *search.Service
	Jobs      *aggregate.Service
	Registry  *aggregate.Registry
}

// Handler serves the /api routes.
type Handler struct {
	opts   Options
	deps   Deps
	jobCtx context.Context
	now    func() time.Time
}

// New creates a Handler. Aggregation jobs run on jobCtx, so cancelling it
// stops them between batches.
func New(jobCtx context.Context, opts Options, deps Deps) *Handler {
	if opts.RootFolderID == "" {
		opts.RootFolderID = drive.RootID
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = extract.DefaultMaxFileBytes
	}
	return &Handler{opts: opts, deps: deps, jobCtx: jobCtx, now: time.Now}
}

// Routes returns the API router, to be mounted at /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Post("/verify", h.verify)

	r.Group(func(r chi.Router) {
		r.Use(allowList(h.opts.Allowed))

		r.Get("/live-search", h.liveSearch)
		r.Post("/search", h.search)
		r.Post("/multi-query-search", h.multiQuerySearch)
		r.Get("/folders", h.folders)
		r.Get("/files", h.files)
		r.Get("/stats", h.stats)
		r.Get("/analytics", h.analytics)

		r.Post("/extract-text", h.extractText)
		r.Post("/process-excel", h.processExcel)
		r.Post("/combine-files", h.combineFiles)

		r.Post("/jobs", h.createJob)
		r.Get("/jobs/{id}", h.getJob)
		r.Get("/jobs/{id}/artifacts/{n}", h.getArtifact)
	})
	return r
}

// provider opens a provider for the request's bearer token. fallbackToken
// is used when the request carries no Authorization header.
func (h *Handler) provider(r *http.Request, fallbackToken string) (drive.Provider, error) {
	p, _, err := h.sessionProvider(r, fallbackToken)
	return p, err
}

func (h *Handler) sessionProvider(r *http.Request, fallbackToken string) (drive.Provider, *auth.Session, error) {
	s, err := auth.FromRequest(r, h.deps.Refresher)
	if errors.Is(err, domain.ErrNoToken) && fallbackToken != "" {
		s, err = auth.NewSession(&oauth2.Token{AccessToken: fallbackToken}, h.deps.Refresher), nil
	}
	if err != nil {
		return nil, nil, err
	}
	p, err := h.deps.Providers(context.WithoutCancel(r.Context()), s)
	if err != nil {
		return nil, nil, err
	}
	return p, s, nil
}
