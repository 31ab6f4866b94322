package domain

import (
	"path/filepath"
	"strings"
)

// FileKind is the extraction strategy tag for a file.
type FileKind int

const (
	KindUnsupported FileKind = iota
	KindNativeDoc
	KindLegacyDoc
	KindOpenXMLDoc
	KindPDF
	KindPlainText
	KindOpenDocText
	KindNativeSheet
	KindLegacySheet
	KindOpenXMLSheet
	KindEmail
	KindMbox
)

var kindNames = map[FileKind]string{
	KindUnsupported:  "unsupported",
	KindNativeDoc:    "native-doc",
	KindLegacyDoc:    "legacy-doc",
	KindOpenXMLDoc:   "docx",
	KindPDF:          "pdf",
	KindPlainText:    "text",
	KindOpenDocText:  "odt",
	KindNativeSheet:  "native-sheet",
	KindLegacySheet:  "xls",
	KindOpenXMLSheet: "xlsx",
	KindEmail:        "eml",
	KindMbox:         "mbox",
}

func (k FileKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unsupported"
}

// IsSpreadsheet reports whether files of this kind go through the
// workbook matcher instead of text extraction.
func (k FileKind) IsSpreadsheet() bool {
	return k == KindNativeSheet || k == KindLegacySheet || k == KindOpenXMLSheet
}

var kindByMime = map[string]FileKind{
	MimeNativeDoc:    KindNativeDoc,
	MimeLegacyDoc:    KindLegacyDoc,
	MimeOpenXMLDoc:   KindOpenXMLDoc,
	MimePDF:          KindPDF,
	MimePlainText:    KindPlainText,
	MimeOpenDocText:  KindOpenDocText,
	MimeNativeSheet:  KindNativeSheet,
	MimeLegacySheet:  KindLegacySheet,
	MimeOpenXMLSheet: KindOpenXMLSheet,
	MimeEmail:        KindEmail,
	MimeMbox:         KindMbox,
}

var kindByExt = map[string]FileKind{
	".doc":  KindLegacyDoc,
	".docx": KindOpenXMLDoc,
	".pdf":  KindPDF,
	".txt":  KindPlainText,
	".odt":  KindOpenDocText,
	".xls":  KindLegacySheet,
	".xlsx": KindOpenXMLSheet,
	".eml":  KindEmail,
	".mbox": KindMbox,
}

// KindOf maps a mime type to its FileKind. Generic mime types such as
// application/octet-stream fall back to the file extension.
func KindOf(mimeType, name string) FileKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if k, ok := kindByMime[mt]; ok {
		return k
	}
	if k, ok := kindByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return KindUnsupported
}

// MimeFor returns the canonical mime type of a kind, or "" for unsupported.
func MimeFor(k FileKind) string {
	for mt, kk := range kindByMime {
		if kk == k {
			return mt
		}
	}
	return ""
}
