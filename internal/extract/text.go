package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
	repeatedSpace  = regexp.MustCompile(`[ \t]{2,}`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normalize turns extracted text into plain LF-separated text without
// control characters or runs of blank lines.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlChars.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\t", " ")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = repeatedSpace.ReplaceAllString(s, " ")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// DefaultTrimMarker and DefaultTrimMaxLines bound the header that TrimHeader keeps.
const (
	DefaultTrimMarker   = "reference"
	DefaultTrimMaxLines = 23
)

// TrimHeader keeps the non-empty lines of s up to and including the first
// one containing marker (case-insensitive). Without a match it keeps the
// first maxLines lines. maxLines <= 0 returns s unchanged.
func TrimHeader(s, marker string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	marker = strings.ToLower(marker)

	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			lines = append(lines, l)
		}
	}

	if marker != "" {
		for i, l := range lines {
			if strings.Contains(strings.ToLower(l), marker) {
				return strings.Join(lines[:i+1], "\n")
			}
		}
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

// Fallback renders the metadata block substituted for content that could
// not be extracted.
func Fallback(f domain.FileRecord, message string) string {
	size := "Unknown"
	if n := f.SizeBytes(); n > 0 {
		size = fmt.Sprintf("%dKB", (n+512)/1024)
	}
	modified := "Unknown"
	if !f.ModifiedTime.IsZero() {
		modified = f.ModifiedTime.UTC().Format(time.RFC1123)
	}
	return fmt.Sprintf("[Document Information]\nName: %s\nType: %s\nSize: %s\nModified: %s\n\n%s",
		f.Name, f.MimeType, size, modified, message)
}

// descriptionPreview renders a file's Drive description in place of body text.
func descriptionPreview(f domain.FileRecord, description string) string {
	return fmt.Sprintf("[Word Document (.doc) - Preview from Description]\nName: %s\nType: %s\n\nDescription/Preview:\n%s\n\nNote: Full text extraction from this .doc file was limited.",
		f.Name, f.MimeType, Normalize(description))
}
