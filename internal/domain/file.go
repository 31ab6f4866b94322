package domain

import "time"

// Drive mime types the pipeline distinguishes.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeNativeDoc    = "application/vnd.google-apps.document"
	MimeNativeSheet  = "application/vnd.google-apps.spreadsheet"
	MimeLegacyDoc    = "application/msword"
	MimeOpenXMLDoc   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeLegacySheet  = "application/vnd.ms-excel"
	MimeOpenXMLSheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF          = "application/pdf"
	MimePlainText    = "text/plain"
	MimeOpenDocText  = "application/vnd.oasis.opendocument.text"
	MimeEmail        = "message/rfc822"
	MimeMbox         = "application/mbox"
)

// FileRecord is a file as returned by a storage provider listing.
// Size is nil for native formats that have no byte size.
type FileRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Size         *int64    `json:"size,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime"`
	CreatedTime  time.Time `json:"createdTime"`
}

// Kind classifies the record by mime type and name.
func (f FileRecord) Kind() FileKind {
	return KindOf(f.MimeType, f.Name)
}

// SizeBytes returns the declared size, or -1 when absent.
func (f FileRecord) SizeBytes() int64 {
	if f.Size == nil {
		return -1
	}
	return *f.Size
}

// ExtractionResult holds the text extracted from one file.
// Content always carries something presentable: when Succeeded is false it
// holds a fallback block describing the file and the failure.
type ExtractionResult struct {
	FileID        string `json:"fileId"`
	FileName      string `json:"fileName"`
	Content       string `json:"content"`
	Succeeded     bool   `json:"succeeded"`
	FailureReason string `json:"failureReason,omitempty"`
}
