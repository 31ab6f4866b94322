// Package search runs Drive searches: live first-page lookups backed by the
// result cache, full paginated searches over expanded folders, and the
// all-terms content filter used for multi-query refinement.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/analytics"
	"github.com/cwoolley/playbook/internal/batch"
	"github.com/cwoolley/playbook/internal/cache"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"github.com/cwoolley/playbook/internal/query"
	"go.uber.org/zap"
)

const (
	// MinLiveQueryLength is the shortest query a live search accepts.
	MinLiveQueryLength = 2
	// MultiQueryBatchSize is how many files the content filter checks at once.
	MultiQueryBatchSize = 15
	// lightweightTimeout bounds the text export of a single file.
	lightweightTimeout = 8 * time.Second
)

// Search kinds reported to the Recorder.
const (
	KindLive  = "live"
	KindFull  = "full"
	KindMulti = "multi"
)

// Request describes a search as the dashboard sends it.
type Request struct {
	Query          string `json:"query"`
	FolderID       string `json:"folderId"`
	SelectedFolder string `json:"selectedFolder"`
	FileType       string `json:"fileType"`
	NameFilter     string `json:"nameFilter"`
	PageToken      string `json:"pageToken,omitempty"`
	// Owner keeps cached pages private to one caller; see cache.Owner.
	Owner          string `json:"-"`
}

func (r Request) cacheKey() cache.Key {
	return cache.Key{
		Query:          r.Query,
		FolderID:       r.FolderID,
		SelectedFolder: r.SelectedFolder,
		FileType:       r.FileType,
		NameFilter:     r.NameFilter,
		Owner:          r.Owner,
	}
}

// plan parses the request into terms, a filter and the folder the filter
// is anchored at. Searching from the root with no selected folder is
// unscoped.
func (r Request) plan() ([]string, query.Filter, error) {
	terms, err := query.Parse(r.Query)
	if err != nil {
		return nil, query.Filter{}, err
	}
	mc, err := query.ParseMimeClass(r.FileType)
	if err != nil {
		return nil, query.Filter{}, err
	}
	hint, err := query.ParseNameHint(r.NameFilter)
	if err != nil {
		return nil, query.Filter{}, err
	}

	f := query.Filter{MimeClass: mc, NameHint: hint}
	switch {
	case r.SelectedFolder != "":
		f.Scope = query.ScopeExplicitFolder
		f.FolderID = r.SelectedFolder
	case r.FolderID != "" && r.FolderID != drive.RootID:
		f.Scope = query.ScopeCurrentAndDescendants
		f.FolderID = r.FolderID
	default:
		f.Scope = query.ScopeNone
	}
	return terms, f, nil
}

// LiveResult is one page of an as-you-type search.
type LiveResult struct {
	Files         []domain.FileRecord `json:"files"`
	NextPageToken string              `json:"nextPageToken,omitempty"`
	TotalResults  int                 `json:"totalResults"`
	MultiQuery    bool                `json:"isMultiQuery"`
	Terms         []string            `json:"searchTerms"`
	Cached        bool                `json:"cached"`
}

// Result is the outcome of a full search.
type Result struct {
	Files     []domain.FileRecord `json:"files"`
	Total     int                 `json:"total"`
	Truncated bool                `json:"truncated"`
	Terms     []string            `json:"searchTerms"`
}

// Recorder observes search latency.
type Recorder interface {
	SearchObserved(kind string, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SearchObserved(string, time.Duration) {}

// Service runs searches against a caller-supplied provider. The cache and
// analytics tracker are shared across callers.
type Service struct {
	cache    *cache.Cache
	tracker  *analytics.Tracker
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports search latency to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// New creates a Service. A nil cache or tracker gets a default one.
func New(c *cache.Cache, tracker *analytics.Tracker, logger *zap.Logger, opts ...Option) *Service {
	if c == nil {
		c = cache.New(0, 0)
	}
	if tracker == nil {
		tracker = analytics.NewTracker(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{cache: c, tracker: tracker, logger: logger, recorder: nopRecorder{}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Analytics returns the tracker searches are recorded in.
func (s *Service) Analytics() *analytics.Tracker { return s.tracker }

func (s *Service) observe(kind, q string, results int, start time.Time) {
	took := s.now().Sub(start)
	s.recorder.SearchObserved(kind, took)
	if kind != KindMulti {
		s.tracker.Record(q, results, took, kind == KindLive)
	}
}

// Live returns one page of results. Only first pages are cached; a request
// carrying a page token always goes to the provider. Scoped live searches
// look in the anchor folder only, without expanding descendants.
func (s *Service) Live(ctx context.Context, p drive.Provider, req Request) (LiveResult, error) {
	if len(strings.TrimSpace(req.Query)) < MinLiveQueryLength {
		return LiveResult{}, domain.NewValidation("query", "must be at least 2 characters")
	}
	terms, f, err := req.plan()
	if err != nil {
		return LiveResult{}, err
	}

	start := s.now()
	key := req.cacheKey()
	if req.PageToken == "" {
		if e, ok := s.cache.Get(key); ok {
			s.observe(KindLive, req.Query, len(e.Files), start)
			return LiveResult{
				Files:         e.Files,
				NextPageToken: e.NextPageToken,
				TotalResults:  len(e.Files),
				MultiQuery:    len(terms) > 1,
				Terms:         terms,
				Cached:        true,
			}, nil
		}
	}

	var containers []string
	if f.Scope != query.ScopeNone {
		containers = []string{f.FolderID}
	}
	page, err := drive.ListPage(ctx, p, query.Build(terms, f, containers), req.PageToken, drive.LivePageSize)
	if err != nil {
		return LiveResult{}, err
	}
	if page.Files == nil {
		page.Files = []domain.FileRecord{}
	}
	if req.PageToken == "" {
		s.cache.Set(key, page.Files, page.NextPageToken)
	}
	s.observe(KindLive, req.Query, len(page.Files), start)

	return LiveResult{
		Files:         page.Files,
		NextPageToken: page.NextPageToken,
		TotalResults:  len(page.Files),
		MultiQuery:    len(terms) > 1,
		Terms:         terms,
	}, nil
}

// Search collects every match up to drive.MaxSearchResults. A folder
// anchor is expanded to its descendants first; if expansion fails part way
// the search proceeds over the folders found so far.
func (s *Service) Search(ctx context.Context, p drive.Provider, req Request) (Result, error) {
	terms, f, err := req.plan()
	if err != nil {
		return Result{}, err
	}

	start := s.now()
	var containers []string
	switch f.Scope {
	case query.ScopeExplicitFolder:
		containers = []string{f.FolderID}
	case query.ScopeCurrentAndDescendants:
		containers, err = drive.ExpandFolders(ctx, p, f.FolderID)
		if err != nil {
			s.logger.Warn("folder expansion incomplete",
				zap.String("folder_id", f.FolderID),
				zap.Int("folders", len(containers)),
				zap.Error(err))
		}
	}

	q := query.Build(terms, f, containers)
	s.logger.Debug("drive search", zap.String("q", q))
	res, err := drive.SearchAll(ctx, p, q, drive.MaxSearchResults)
	if err != nil {
		return Result{}, err
	}
	s.observe(KindFull, req.Query, len(res.Files), start)

	return Result{Files: res.Files, Total: len(res.Files), Truncated: res.Truncated, Terms: terms}, nil
}

// MultiQueryResult lists the files that contain every term.
type MultiQueryResult struct {
	MatchingFiles  []domain.FileRecord `json:"matchingFiles"`
	TotalProcessed int                 `json:"totalProcessed"`
	TotalMatches   int                 `json:"totalMatches"`
	Queries        []string            `json:"queries"`
}

// MatchAllTerms keeps the files whose name, or failing that whose
// lightweight content, contains every term case-insensitively. Native
// documents are exported as plain text; other files are judged by their
// description. Files that cannot be read simply do not match.
func (s *Service) MatchAllTerms(ctx context.Context, p drive.Provider, files []domain.FileRecord, terms []string) (MultiQueryResult, error) {
	if len(files) == 0 {
		return MultiQueryResult{}, domain.NewValidation("files", "no files provided")
	}
	if len(terms) == 0 {
		return MultiQueryResult{}, domain.NewValidation("queries", "no queries provided")
	}

	start := s.now()
	matched, err := batch.Run(ctx, files, MultiQueryBatchSize, func(ctx context.Context, _ int, f domain.FileRecord) bool {
		if containsAll(f.Name, terms) {
			return true
		}
		return containsAll(s.lightweightContent(ctx, p, f), terms)
	}, nil)
	if err != nil {
		return MultiQueryResult{}, err
	}

	out := MultiQueryResult{MatchingFiles: []domain.FileRecord{}, TotalProcessed: len(files), Queries: terms}
	for i, ok := range matched {
		if ok {
			out.MatchingFiles = append(out.MatchingFiles, files[i])
		}
	}
	out.TotalMatches = len(out.MatchingFiles)
	s.observe(KindMulti, query.Join(terms), out.TotalMatches, start)
	return out, nil
}

func (s *Service) lightweightContent(ctx context.Context, p drive.Provider, f domain.FileRecord) string {
	if f.Kind() == domain.KindNativeDoc {
		ctx, cancel := context.WithTimeout(ctx, lightweightTimeout)
		data, err := p.Export(ctx, f.ID, domain.MimePlainText)
		cancel()
		if err == nil {
			return string(data)
		}
		s.logger.Debug("text export failed, using description", zap.String("file_id", f.ID), zap.Error(err))
	}
	desc, err := p.Describe(ctx, f.ID)
	if err != nil {
		s.logger.Debug("lightweight content unavailable", zap.String("file_id", f.ID), zap.Error(err))
		return ""
	}
	return desc
}

func containsAll(content string, terms []string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, t := range terms {
		if !strings.Contains(lower, strings.ToLower(t)) {
			return false
		}
	}
	return true
}
