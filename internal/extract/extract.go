// Package extract turns stored files into plain text. Each file kind maps to
// one strategy; a file that cannot be read yields a fallback block describing
// it rather than an error.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/drive"
	"go.uber.org/zap"
)

// DefaultMaxFileBytes caps downloads for extraction.
const DefaultMaxFileBytes = 10 << 20

// minLegacyText is the shortest legacy Word text accepted before falling back
// to the file description.
const minLegacyText = 50

// Options tune an Extractor.
type Options struct {
	MaxFileBytes int64
	TrimMarker   string
	TrimMaxLines int
}

// Recorder observes extraction outcomes.
type Recorder interface {
	Extraction(kind string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Extraction(string, bool) {}

// fallbackError carries a message meant for the fallback block as is.
type fallbackError struct{ msg string }

func (e *fallbackError) Error() string { return e.msg }

func fallbackf(format string, args ...any) error {
	return &fallbackError{msg: fmt.Sprintf(format, args...)}
}

type strategy func(ctx context.Context, f domain.FileRecord) (string, error)

// Extractor dispatches files to the strategy for their kind.
type Extractor struct {
	provider   drive.Provider
	logger     *zap.Logger
	opts       Options
	recorder   Recorder
	strategies map[domain.FileKind]strategy
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRecorder reports every extraction to r.
func WithRecorder(r Recorder) Option {
	return func(e *Extractor) { e.recorder = r }
}

// New creates an Extractor reading through provider.
func New(provider drive.Provider, logger *zap.Logger, opts Options, options ...Option) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	e := &Extractor{
		provider: provider,
		logger:   logger,
		opts:     opts,
		recorder: nopRecorder{},
	}
	for _, o := range options {
		o(e)
	}

	sheet := func(context.Context, domain.FileRecord) (string, error) {
		return "", fallbackf("Spreadsheet content is processed by the spreadsheet pipeline.")
	}
	e.strategies = map[domain.FileKind]strategy{
		domain.KindNativeDoc:    e.nativeDoc,
		domain.KindLegacyDoc:    e.legacyDoc,
		domain.KindOpenXMLDoc:   e.downloaded(docxText),
		domain.KindPDF:          e.downloaded(pdfText),
		domain.KindPlainText:    e.downloaded(plainText),
		domain.KindOpenDocText:  e.downloaded(odtText),
		domain.KindEmail:        e.downloaded(emailText),
		domain.KindMbox:         e.downloaded(mboxText),
		domain.KindNativeSheet:  sheet,
		domain.KindLegacySheet:  sheet,
		domain.KindOpenXMLSheet: sheet,
	}
	return e
}

// Extract returns the text of f. It never fails: problems are reported
// through a fallback block with Succeeded unset.
func (e *Extractor) Extract(ctx context.Context, f domain.FileRecord) domain.ExtractionResult {
	kind := f.Kind()
	res := domain.ExtractionResult{FileID: f.ID, FileName: f.Name}

	run, ok := e.strategies[kind]
	if !ok {
		return e.fail(res, f, kind, "Unsupported file type. Please download the file to view its content.")
	}
	if n := f.SizeBytes(); n > e.opts.MaxFileBytes {
		return e.fail(res, f, kind, fmt.Sprintf("File is too large to process (limit %dMB).", e.opts.MaxFileBytes>>20))
	}

	text, err := run(ctx, f)
	if err != nil {
		var fb *fallbackError
		if errors.As(err, &fb) {
			return e.fail(res, f, kind, fb.msg)
		}
		e.logger.Warn("extraction failed",
			zap.String("file_id", f.ID),
			zap.String("file_name", f.Name),
			zap.Stringer("kind", kind),
			zap.Error(err))
		return e.fail(res, f, kind, "Error extracting text: "+err.Error())
	}

	text = Normalize(text)
	if text == "" {
		return e.fail(res, f, kind, "No text content could be extracted from this file.")
	}
	res.Content = text
	res.Succeeded = true
	e.recorder.Extraction(kind.String(), true)
	return res
}

func (e *Extractor) fail(res domain.ExtractionResult, f domain.FileRecord, kind domain.FileKind, msg string) domain.ExtractionResult {
	res.Content = Fallback(f, msg)
	res.Succeeded = false
	res.FailureReason = msg
	e.recorder.Extraction(kind.String(), false)
	return res
}

func (e *Extractor) downloaded(parse func([]byte) (string, error)) strategy {
	return func(ctx context.Context, f domain.FileRecord) (string, error) {
		data, err := e.provider.Download(ctx, f.ID, e.opts.MaxFileBytes)
		if err != nil {
			return "", fmt.Errorf("download: %w", err)
		}
		return parse(data)
	}
}

func (e *Extractor) nativeDoc(ctx context.Context, f domain.FileRecord) (string, error) {
	data, err := e.provider.Export(ctx, f.ID, domain.MimeOpenXMLDoc)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return docxText(data)
}

func (e *Extractor) legacyDoc(ctx context.Context, f domain.FileRecord) (string, error) {
	data, err := e.provider.Download(ctx, f.ID, e.opts.MaxFileBytes)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	if !IsLegacyWord(data) {
		return "", fallbackf("File doesn't appear to be a valid Word document.\nIt may be corrupted or in an unsupported format.")
	}

	text, err := wordText(data)
	if err != nil {
		e.logger.Debug("piece table unreadable, salvaging text", zap.String("file_id", f.ID), zap.Error(err))
	}
	if len(Normalize(text)) < minLegacyText {
		text = salvageText(data)
	}
	if len(Normalize(text)) >= minLegacyText {
		return text, nil
	}

	desc, err := e.provider.Describe(ctx, f.ID)
	if err == nil && desc != "" {
		return descriptionPreview(f, desc), nil
	}
	return "", fallbackf("Limited text could be extracted from this .doc file. It may be in an older format or contain mostly images.")
}

// ExtractBytes extracts text from file content already in memory.
func ExtractBytes(kind domain.FileKind, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case domain.KindOpenXMLDoc:
		text, err = docxText(data)
	case domain.KindPDF:
		text, err = pdfText(data)
	case domain.KindPlainText:
		text, err = plainText(data)
	case domain.KindOpenDocText:
		text, err = odtText(data)
	case domain.KindEmail:
		text, err = emailText(data)
	case domain.KindMbox:
		text, err = mboxText(data)
	case domain.KindLegacyDoc:
		if !IsLegacyWord(data) {
			return "", fmt.Errorf("%w: not a Word document", domain.ErrExtraction)
		}
		text, err = wordText(data)
		if err != nil || len(Normalize(text)) < minLegacyText {
			text, err = salvageText(data), nil
		}
	default:
		return "", domain.NewValidation("mimeType", fmt.Sprintf("unsupported file type %s", kind))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrExtraction, err)
	}
	return Normalize(text), nil
}

// Trim applies the configured header trim to text.
func (e *Extractor) Trim(text string) string {
	return TrimHeader(text, e.opts.TrimMarker, e.opts.TrimMaxLines)
}
