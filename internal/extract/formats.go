package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
	"github.com/ledongthuc/pdf"
)

// xmlDialect describes where a zipped XML document keeps its text.
type xmlDialect struct {
	part string
	// textElems limits character data to these elements; empty means all.
	textElems  map[string]bool
	breakElems map[string]bool
	tabElems   map[string]bool
	blockElems map[string]bool
	spaceElems map[string]bool
}

var (
	wordML = xmlDialect{
		part:       "word/document.xml",
		textElems:  map[string]bool{"t": true},
		breakElems: map[string]bool{"br": true, "cr": true},
		tabElems:   map[string]bool{"tab": true},
		blockElems: map[string]bool{"p": true},
	}
	openDocument = xmlDialect{
		part:       "content.xml",
		breakElems: map[string]bool{"line-break": true},
		tabElems:   map[string]bool{"tab": true},
		blockElems: map[string]bool{"p": true, "h": true},
		spaceElems: map[string]bool{"s": true},
	}
)

func zipPart(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

// xmlText streams the tokens of a document part and keeps its character
// data, turning paragraph ends into newlines.
func xmlText(data []byte, d xmlDialect) (string, error) {
	part, err := zipPart(data, d.part)
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		b      strings.Builder
		inText int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", d.part, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case d.textElems[name]:
				inText++
			case d.breakElems[name]:
				b.WriteByte('\n')
			case d.tabElems[name]:
				b.WriteByte('\t')
			case d.spaceElems[name]:
				b.WriteByte(' ')
			}
		case xml.EndElement:
			name := t.Name.Local
			if d.textElems[name] && inText > 0 {
				inText--
			}
			if d.blockElems[name] {
				b.WriteByte('\n')
			}
		case xml.CharData:
			if len(d.textElems) == 0 || inText > 0 {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) { return xmlText(data, wordML) }

func odtText(data []byte) (string, error) { return xmlText(data, openDocument) }

// pdfText reads the text runs page by page. The reader panics on some
// malformed files, so every call into it is guarded.
func pdfText(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		func() {
			defer func() { _ = recover() }()
			page := reader.Page(i)
			if page.V.IsNull() {
				return
			}
			for _, run := range page.Content().Text {
				b.WriteString(run.S)
			}
			b.WriteString("\n")
		}()
	}
	return b.String(), nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	return string(data), nil
}

var (
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	htmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&nbsp;", " ")
)

// emailText renders the headers a reader needs plus the message body,
// preferring the plain text part.
func emailText(data []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse message: %w", err)
	}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		body = htmlEntities.Replace(htmlTags.ReplaceAllString(env.HTML, " "))
	}

	var b strings.Builder
	for _, h := range []string{"From", "To", "Date", "Subject"} {
		if v := env.GetHeader(h); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", h, v)
		}
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(body)
	return b.String(), nil
}

// mboxText extracts every message of a mailbox, separated by a rule.
// Messages that fail to parse are skipped.
func mboxText(data []byte) (string, error) {
	r := mbox.NewReader(bytes.NewReader(data))
	var parts []string
	for {
		msg, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(parts) == 0 {
				return "", fmt.Errorf("read mailbox: %w", err)
			}
			break
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			continue
		}
		text, err := emailText(raw)
		if err != nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(text))
	}
	if len(parts) == 0 {
		return "", errors.New("mailbox holds no readable messages")
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
