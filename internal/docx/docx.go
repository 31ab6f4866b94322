// Package docx builds Word documents made of headings, paragraphs and
// tables. Documents are assembled as plain blocks and rendered through
// godocx only when the bytes are needed.
package docx

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomutex/godocx"
)

// ContentType is the media type of a .docx file.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// tableStyle is the bordered table style shipped in the default template.
const tableStyle = "TableGrid"

// Block is one top-level element of a document body.
type Block interface {
	outline(b *strings.Builder)
}

// Heading is a styled heading. Level 0 renders as the document title.
type Heading struct {
	Level int
	Text  string
}

// Paragraph is body text. Each line becomes its own paragraph.
type Paragraph struct {
	Text string
	Bold bool
}

// Table is a bordered table with a bold header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// Document is an ordered list of blocks.
type Document struct {
	Blocks []Block
}

func (d *Document) Heading(level int, text string) {
	d.Blocks = append(d.Blocks, Heading{Level: level, Text: text})
}

func (d *Document) Paragraph(text string) {
	d.Blocks = append(d.Blocks, Paragraph{Text: text})
}

func (d *Document) Bold(text string) {
	d.Blocks = append(d.Blocks, Paragraph{Text: text, Bold: true})
}

func (d *Document) Table(header []string, rows [][]string) {
	d.Blocks = append(d.Blocks, Table{Header: header, Rows: rows})
}

// level clamps a heading level to Title, Heading 1, 2 or 3.
func (h Heading) level() uint {
	return uint(min(max(h.Level, 0), 3))
}

// cells pads or cuts row to the header width.
func (t Table) cells(row []string) []string {
	out := make([]string, len(t.Header))
	copy(out, row)
	return out
}

func (h Heading) outline(b *strings.Builder) {
	fmt.Fprintf(b, "%s %s\n", strings.Repeat("#", int(h.level())+1), h.Text)
}

func (p Paragraph) outline(b *strings.Builder) {
	if p.Bold {
		fmt.Fprintf(b, "**%s**\n", p.Text)
		return
	}
	b.WriteString(p.Text + "\n")
}

func (t Table) outline(b *strings.Builder) {
	b.WriteString("| " + strings.Join(t.Header, " | ") + " |\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(t.cells(row), " | ") + " |\n")
	}
}

// Outline renders the document as plain text: headings prefixed with '#',
// bold paragraphs wrapped in '**' and table rows as '|' separated cells.
func (d *Document) Outline() string {
	var b strings.Builder
	for _, blk := range d.Blocks {
		blk.outline(&b)
	}
	return b.String()
}

// Bytes renders the document as a .docx file.
func (d *Document) Bytes() ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}

	for _, blk := range d.Blocks {
		switch b := blk.(type) {
		case Heading:
			if _, err := doc.AddHeading(b.Text, b.level()); err != nil {
				return nil, fmt.Errorf("add heading: %w", err)
			}
		case Paragraph:
			for _, line := range strings.Split(b.Text, "\n") {
				r := doc.AddParagraph("").AddText(line)
				if b.Bold {
					r.Bold(true)
				}
			}
		case Table:
			tbl := doc.AddTable()
			tbl.Style(tableStyle)
			hdr := tbl.AddRow()
			for _, h := range b.Header {
				hdr.AddCell().AddParagraph("").AddText(h).Bold(true)
			}
			for _, row := range b.Rows {
				tr := tbl.AddRow()
				for _, v := range b.cells(row) {
					tr.AddCell().AddParagraph(v)
				}
			}
			// Word merges adjacent tables without a paragraph between them.
			doc.AddParagraph("")
		}
	}

	// godocx saves to a path; the package goes through a temporary file.
	f, err := os.CreateTemp("", "playbook-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := doc.SaveTo(path); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}
