package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwoolley/playbook/internal/batch"
	"github.com/cwoolley/playbook/internal/docx"
	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"github.com/cwoolley/playbook/internal/extract"
	"github.com/cwoolley/playbook/internal/query"
	"github.com/cwoolley/playbook/internal/report"
	"go.uber.org/zap"
)

// Recorder observes finished jobs.
type Recorder interface {
	JobFinished(status string)
}

type nopRecorder struct{}

func (nopRecorder) JobFinished(string) {}

// Service runs aggregation jobs.
type Service struct {
	logger      *zap.Logger
	batchSize   int
	extractOpts extract.Options
	extractWith []extract.Option
	recorder    Recorder
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports finished jobs to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithExtractorOptions passes options to every extractor the service creates.
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(s *Service) { s.extractWith = append(s.extractWith, opts...) }
}

// WithClock overrides the time used for report headers and file names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service processing batchSize files at a time.
func NewService(logger *zap.Logger, batchSize int, extractOpts extract.Options, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize < 1 {
		batchSize = batch.DefaultSize
	}
	s := &Service{
		logger:      logger,
		batchSize:   batchSize,
		extractOpts: extractOpts,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// legacySheetReason is recorded for .xls workbooks, which the workbook
// reader cannot open.
const legacySheetReason = "legacy .xls workbooks are not supported; save the file as .xlsx"

type sheetOutcome struct {
	matches report.WorkbookMatches
	failure *report.Failure
}

// Run processes the job's files. Spreadsheets go through the workbook
// matcher, everything else through text extraction. onUpdate receives a
// snapshot after every state change. Run returns an error only when the
// job ends in StatusError.
func (s *Service) Run(ctx context.Context, p drive.Provider, job *Job, onUpdate func(Job)) error {
	log := s.logger.With(zap.String("job_id", job.ID))
	publish := func() {
		if onUpdate != nil {
			onUpdate(job.Snapshot())
		}
	}
	set := func(st Status) {
		job.Status = st
		log.Info("job status", zap.String("status", string(st)), zap.Int("progress", job.Progress))
		publish()
	}
	fail := func(err error) error {
		job.Err = err.Error()
		set(StatusError)
		s.recorder.JobFinished(string(StatusError))
		return err
	}

	set(StatusInitializing)

	var sheets, docs []domain.FileRecord
	for _, f := range job.Files {
		if f.Kind().IsSpreadsheet() {
			sheets = append(sheets, f)
		} else {
			docs = append(docs, f)
		}
	}

	batches := func(n int) int { return (n + s.batchSize - 1) / s.batchSize }
	total := batches(len(sheets)) + batches(len(docs))
	done := 0
	onBatch := func(batch.Progress) {
		done++
		if pct := done * 100 / total; pct > job.Progress {
			job.Progress = pct
		}
		publish()
	}

	var summary *report.SpreadsheetSummary
	if len(sheets) > 0 {
		set(StatusProcessingExcel)
		outcomes, err := batch.Run(ctx, sheets, s.batchSize, func(ctx context.Context, _ int, f domain.FileRecord) sheetOutcome {
			return s.matchSheet(ctx, p, f, job.Query)
		}, onBatch)
		if err != nil {
			return fail(fmt.Errorf("job cancelled: %w", err))
		}

		summary = &report.SpreadsheetSummary{Query: query.Join(job.Query)}
		for _, o := range outcomes {
			if o.failure != nil {
				summary.Failures = append(summary.Failures, *o.failure)
				continue
			}
			summary.Workbooks = append(summary.Workbooks, o.matches)
		}
		job.Failures = append(job.Failures, summary.Failures...)
		if len(summary.Workbooks) == 0 {
			return fail(domain.ErrNoSpreadsheets)
		}
	}

	var results []domain.ExtractionResult
	if len(docs) > 0 {
		set(StatusProcessingDocuments)
		ex := extract.New(p, log, s.extractOpts, s.extractWith...)
		var err error
		results, err = batch.Run(ctx, docs, s.batchSize, func(ctx context.Context, _ int, f domain.FileRecord) domain.ExtractionResult {
			return ex.Extract(ctx, f)
		}, onBatch)
		if err != nil {
			return fail(fmt.Errorf("job cancelled: %w", err))
		}
		for _, r := range results {
			if !r.Succeeded {
				job.Failures = append(job.Failures, report.Failure{FileName: r.FileName, Reason: r.FailureReason})
			}
		}
	}

	set(StatusCreatingOutput)
	now := s.now()
	q := query.Join(job.Query)
	if summary != nil {
		a, err := artifact("excel_"+report.Filename(q, now), report.BuildSpreadsheetReport(*summary, now))
		if err != nil {
			return fail(err)
		}
		job.Artifacts = append(job.Artifacts, a)
	}
	if len(docs) > 0 {
		a, err := artifact(report.Filename(q, now), report.BuildTextReport(q, results, now))
		if err != nil {
			return fail(err)
		}
		job.Artifacts = append(job.Artifacts, a)
	}

	job.Progress = 100
	set(StatusComplete)
	s.recorder.JobFinished(string(StatusComplete))
	return nil
}

func artifact(name string, d *docx.Document) (Artifact, error) {
	data, err := d.Bytes()
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Artifact{Name: name, ContentType: docx.ContentType, Size: len(data), Data: data}, nil
}

func (s *Service) matchSheet(ctx context.Context, p drive.Provider, f domain.FileRecord, terms []string) sheetOutcome {
	failed := func(reason string) sheetOutcome {
		s.logger.Warn("spreadsheet failed", zap.String("file_id", f.ID), zap.String("file_name", f.Name), zap.String("reason", reason))
		return sheetOutcome{failure: &report.Failure{FileName: f.Name, Reason: reason}}
	}

	var (
		data []byte
		err  error
	)
	switch f.Kind() {
	case domain.KindLegacySheet:
		return failed(legacySheetReason)
	case domain.KindNativeSheet:
		data, err = p.Export(ctx, f.ID, domain.MimeOpenXMLSheet)
	default:
		limit := s.extractOpts.MaxFileBytes
		if limit <= 0 {
			limit = extract.DefaultMaxFileBytes
		}
		data, err = p.Download(ctx, f.ID, limit)
	}
	if err != nil {
		return failed(err.Error())
	}

	m, err := report.MatchWorkbook(f.Name, data, terms)
	if err != nil {
		return failed(err.Error())
	}
	return sheetOutcome{matches: m}
}

// Start registers a job and runs it in the background on ctx. The returned
// snapshot is the job as registered.
func (s *Service) Start(ctx context.Context, p drive.Provider, reg *Registry, terms []string, files []domain.FileRecord) Job {
	job := reg.Create(terms, files)
	go func() {
		j := job.Snapshot()
		if err := s.Run(ctx, p, &j, reg.Update); err != nil && !errors.Is(err, domain.ErrNoSpreadsheets) {
			s.logger.Error("job failed", zap.String("job_id", j.ID), zap.Error(err))
		}
	}()
	return job
}
