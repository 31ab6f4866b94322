package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/cwoolley/playbook/internal/aggregate"
	"github.com/cwoolley/playbook/internal/analytics"
	"github.com/cwoolley/playbook/internal/apiclient"
	"github.com/cwoolley/playbook/internal/auth"
	"github.com/cwoolley/playbook/internal/cache"
	"github.com/cwoolley/playbook/internal/config"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"github.com/cwoolley/playbook/internal/extract"
	"github.com/cwoolley/playbook/internal/logger"
	"github.com/cwoolley/playbook/internal/query"
	"github.com/cwoolley/playbook/internal/retry"
	"github.com/cwoolley/playbook/internal/search"
)

// Backend runs searches and aggregation jobs, either in process against
// Drive or through a running server.
type Backend interface {
	Search(ctx context.Context, req search.Request) (search.Result, error)
	// Aggregate runs a job to completion. Artifacts in the returned job
	// carry their content.
	Aggregate(ctx context.Context, query string, files []domain.FileRecord) (aggregate.Job, error)
}

// Opener resolves the backend for a command. serverURL selects the remote
// backend when set.
type Opener func(ctx context.Context, serverURL string) (Backend, error)

var (
	loadConfig   = config.Load
	newAPIClient = func(ctx context.Context, ts oauth2.TokenSource, opts ...drive.ClientOption) (drive.Provider, error) {
		return drive.NewAPIClient(ctx, ts, opts...)
	}
	pollInterval = time.Second
)

func openBackend(ctx context.Context, serverURL string) (Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		return newRemoteBackend(cfg, serverURL), nil
	}
	return newLocalBackend(ctx, cfg)
}

type localBackend struct {
	provider drive.Provider
	search   *search.Service
	jobs     *aggregate.Service
	root     string
}

func newLocalBackend(ctx context.Context, cfg *config.Config) (*localBackend, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, errors.New("Google Drive credentials not configured.\n\n" +
			"Set these environment variables:\n" +
			"  export PLAYBOOK_GOOGLE_CLIENT_ID=\"your-client-id\"\n" +
			"  export PLAYBOOK_GOOGLE_CLIENT_SECRET=\"your-client-secret\"\n\n" +
			"or pass --server to use a running playbook server.")
	}

	tok, err := auth.LoadToken(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth token from %s: %w\n\n"+
			"You may need to complete the OAuth flow first.", cfg.TokenPath, err)
	}
	session := auth.NewSession(tok, auth.NewGoogleRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret))
	session.OnRefresh(func(t *oauth2.Token) {
		_ = auth.SaveToken(cfg.TokenPath, t)
	})

	var opts []drive.ClientOption
	if cfg.TeamDriveID != "" {
		opts = append(opts, drive.WithTeamDrive(cfg.TeamDriveID))
	}
	client, err := newAPIClient(ctx, session, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Drive client: %w", err)
	}

	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	log, err := logger.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	return &localBackend{
		provider: drive.NewResilient(client, session.Refresh, retry.DefaultPolicy),
		search:   search.New(cache.New(cfg.CacheTTL, cfg.CacheCapacity), analytics.NewTracker(analytics.DefaultHistory), log),
		jobs: aggregate.NewService(log, cfg.BatchSize, extract.Options{
			MaxFileBytes: cfg.MaxFileBytes,
			TrimMarker:   cfg.TrimMarker,
			TrimMaxLines: cfg.TrimMaxLines,
		}),
		root: cfg.RootFolderID,
	}, nil
}

func (b *localBackend) Search(ctx context.Context, req search.Request) (search.Result, error) {
	if req.FolderID == "" {
		req.FolderID = b.root
	}
	return b.search.Search(ctx, b.provider, req)
}

func (b *localBackend) Aggregate(ctx context.Context, q string, files []domain.FileRecord) (aggregate.Job, error) {
	terms, err := query.Parse(q)
	if err != nil {
		return aggregate.Job{}, err
	}
	job := aggregate.Job{ID: "local", Query: terms, Files: files, TotalFiles: len(files)}
	err = b.jobs.Run(ctx, b.provider, &job, nil)
	return job, err
}

type remoteBackend struct {
	client *apiclient.Client
}

func newRemoteBackend(cfg *config.Config, serverURL string) *remoteBackend {
	var opts []apiclient.Option
	if tok, err := auth.LoadToken(cfg.TokenPath); err == nil {
		opts = append(opts, apiclient.WithToken(tok.AccessToken))
	}
	if email := os.Getenv("PLAYBOOK_EMAIL"); email != "" {
		opts = append(opts, apiclient.WithEmail(email))
	}
	return &remoteBackend{client: apiclient.New(serverURL, nil, opts...)}
}

func (b *remoteBackend) Search(ctx context.Context, req search.Request) (search.Result, error) {
	return b.client.Search(ctx, req)
}

func (b *remoteBackend) Aggregate(ctx context.Context, q string, files []domain.FileRecord) (aggregate.Job, error) {
	id, err := b.client.CreateJob(ctx, q, files)
	if err != nil {
		return aggregate.Job{}, err
	}
	job, err := b.client.WaitJob(ctx, id, pollInterval, nil)
	if err != nil {
		return job, err
	}
	if job.Status == aggregate.StatusError {
		return job, errors.New(job.Err)
	}
	for i := range job.Artifacts {
		_, data, err := b.client.Artifact(ctx, id, i)
		if err != nil {
			return job, err
		}
		job.Artifacts[i].Data = data
	}
	return job, nil
}
