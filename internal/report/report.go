// Package report assembles aggregation results into Word documents.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/docx"
	"github.com/cwoolley/playbook/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

var rule = strings.Repeat("―", 46)

// Failure names a file that could not be processed.
type Failure struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// CombinedFile is text that was extracted by the caller.
type CombinedFile struct {
	FileName      string `json:"fileName"`
	ExtractedText string `json:"extractedText"`
}

func header(d *docx.Document, title, query string, totalFiles int, now time.Time) {
	d.Heading(0, title)
	d.Bold("Search Query: " + query)
	d.Bold(fmt.Sprintf("Total Files: %d", totalFiles))
	d.Bold(fmt.Sprintf("Date: %s | Time: %s", now.Format(dateLayout), now.Format(timeLayout)))
	d.Paragraph(rule)
}

// BuildTextReport renders one section per result, in input order, followed
// by a summary. Failed results keep their section with the fallback text.
func BuildTextReport(query string, results []domain.ExtractionResult, now time.Time) *docx.Document {
	d := &docx.Document{}
	header(d, "Document Search Results", query, len(results), now)

	var failed []Failure
	for _, r := range results {
		d.Heading(1, "File: "+r.FileName)
		d.Paragraph(r.Content)
		d.Paragraph(rule)
		if !r.Succeeded {
			failed = append(failed, Failure{FileName: r.FileName, Reason: r.FailureReason})
		}
	}

	d.Heading(1, "Summary")
	d.Bold(fmt.Sprintf("Files Processed: %d", len(results)))
	d.Bold(fmt.Sprintf("Succeeded: %d", len(results)-len(failed)))
	d.Bold(fmt.Sprintf("Failed: %d", len(failed)))
	failureList(d, failed)
	return d
}

// BuildCombined renders caller-supplied text the same way as BuildTextReport.
func BuildCombined(query string, files []CombinedFile, now time.Time) *docx.Document {
	results := make([]domain.ExtractionResult, len(files))
	for i, f := range files {
		results[i] = domain.ExtractionResult{FileName: f.FileName, Content: f.ExtractedText, Succeeded: true}
	}
	return BuildTextReport(query, results, now)
}

func failureList(d *docx.Document, failed []Failure) {
	if len(failed) == 0 {
		return
	}
	d.Heading(2, "Failed Files")
	for _, f := range failed {
		if f.Reason == "" {
			d.Paragraph(f.FileName)
			continue
		}
		d.Paragraph(f.FileName + ": " + f.Reason)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]`)

// Filename derives a download name from the query and time:
// the sanitised query (at most 30 characters) plus date and time.
func Filename(query string, now time.Time) string {
	s := unsafeChars.ReplaceAllString(strings.ToLower(query), "_")
	if len(s) > 30 {
		s = s[:30]
	}
	return fmt.Sprintf("%s_%s.docx", s, now.Format("2006-01-02_15-04-05"))
}
