package query

import (
	"fmt"
	"strings"

	"github.com/cwoolley/playbook/internal/domain"
)

// Scope selects how a search is restricted to containers.
type Scope int

const (
	// ScopeNone searches the whole directory.
	ScopeNone Scope = iota
	// ScopeCurrentAndDescendants searches a folder and every folder below it.
	ScopeCurrentAndDescendants
	// ScopeExplicitFolder searches exactly one folder.
	ScopeExplicitFolder
)

// MimeClass narrows results to a family of mime types.
type MimeClass int

const (
	MimeAll MimeClass = iota
	MimeDocuments
	MimeSpreadsheets
)

// NameHint adds a fixed name-contains clause.
type NameHint int

const (
	HintNone NameHint = iota
	HintEnquiry
	HintPO
)

// Filter holds everything besides the terms that shapes a Drive query.
type Filter struct {
	Scope     Scope
	FolderID  string
	MimeClass MimeClass
	NameHint  NameHint
}

var (
	documentMimes = []string{
		domain.MimeOpenXMLDoc,
		domain.MimeLegacyDoc,
		domain.MimeNativeDoc,
	}
	spreadsheetMimes = []string{
		domain.MimeOpenXMLSheet,
		domain.MimeLegacySheet,
		domain.MimeNativeSheet,
	}
)

// Mimes returns the concrete mime types of the class.
func (c MimeClass) Mimes() []string {
	switch c {
	case MimeDocuments:
		return documentMimes
	case MimeSpreadsheets:
		return spreadsheetMimes
	default:
		all := make([]string, 0, len(documentMimes)+len(spreadsheetMimes))
		all = append(all, documentMimes...)
		return append(all, spreadsheetMimes...)
	}
}

func (c MimeClass) String() string {
	switch c {
	case MimeDocuments:
		return "documents"
	case MimeSpreadsheets:
		return "spreadsheets"
	default:
		return ""
	}
}

// ParseMimeClass accepts "", "all", "documents" or "spreadsheets".
func ParseMimeClass(s string) (MimeClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return MimeAll, nil
	case "documents":
		return MimeDocuments, nil
	case "spreadsheets":
		return MimeSpreadsheets, nil
	default:
		return MimeAll, domain.NewValidation("fileType", fmt.Sprintf("must be documents or spreadsheets, got %q", s))
	}
}

// Token is the name fragment the hint requires.
func (h NameHint) Token() string {
	switch h {
	case HintEnquiry:
		return "enquiry"
	case HintPO:
		return "po"
	default:
		return ""
	}
}

// ParseNameHint accepts "", "enquiry" or "po".
func ParseNameHint(s string) (NameHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return HintNone, nil
	case "enquiry":
		return HintEnquiry, nil
	case "po":
		return HintPO, nil
	default:
		return HintNone, domain.NewValidation("nameFilter", fmt.Sprintf("must be enquiry or po, got %q", s))
	}
}
