package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cwoolley/playbook/internal/docx"
	"github.com/xuri/excelize/v2"
)

// RowNumberColumn heads the column holding each match's worksheet row.
const RowNumberColumn = "Row No."

// SheetMatches holds the matching rows of one worksheet. Columns starts
// with RowNumberColumn; every row has len(Columns) cells.
type SheetMatches struct {
	Sheet   string
	Columns []string
	Rows    [][]string
}

// WorkbookMatches holds the sheets of one workbook with at least one match.
type WorkbookMatches struct {
	FileName string
	Sheets   []SheetMatches
}

// Total is the number of matching rows across all sheets.
func (w WorkbookMatches) Total() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

// MatchWorkbook scans every worksheet of an xlsx workbook. Row 1 is the
// header. A data row matches when any term occurs in its lowercased,
// space-joined non-empty cells.
func MatchWorkbook(name string, data []byte, terms []string) (WorkbookMatches, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return WorkbookMatches{}, fmt.Errorf("open workbook %s: %w", name, err)
	}
	defer f.Close()

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}

	out := WorkbookMatches{FileName: name}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return WorkbookMatches{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if m, ok := matchSheet(sheet, rows, lowered); ok {
			out.Sheets = append(out.Sheets, m)
		}
	}
	return out, nil
}

func matchSheet(sheet string, rows [][]string, terms []string) (SheetMatches, bool) {
	if len(rows) < 2 || len(terms) == 0 {
		return SheetMatches{}, false
	}

	var (
		matched []int
		used    = map[int]bool{}
	)
	for i := 1; i < len(rows); i++ {
		var parts []string
		for _, c := range rows[i] {
			if c = strings.TrimSpace(c); c != "" {
				parts = append(parts, strings.ToLower(c))
			}
		}
		if len(parts) == 0 || !anyTerm(strings.Join(parts, " "), terms) {
			continue
		}
		matched = append(matched, i)
		for col, c := range rows[i] {
			if strings.TrimSpace(c) != "" {
				used[col] = true
			}
		}
	}
	if len(matched) == 0 {
		return SheetMatches{}, false
	}

	cols := make([]int, 0, len(used))
	for c := range used {
		cols = append(cols, c)
	}
	sort.Ints(cols)

	header := rows[0]
	m := SheetMatches{Sheet: sheet, Columns: []string{RowNumberColumn}}
	for _, c := range cols {
		name := ""
		if c < len(header) {
			name = strings.TrimSpace(header[c])
		}
		if name == "" {
			name = fmt.Sprintf("Column %d", c+1)
		}
		m.Columns = append(m.Columns, name)
	}
	for _, i := range matched {
		row := []string{strconv.Itoa(i + 1)}
		for _, c := range cols {
			v := ""
			if c < len(rows[i]) {
				v = strings.TrimSpace(rows[i][c])
			}
			row = append(row, v)
		}
		m.Rows = append(m.Rows, row)
	}
	return m, true
}

func anyTerm(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// SpreadsheetSummary is the input of BuildSpreadsheetReport. Workbooks
// holds every workbook that was read, in input order, matched or not.
type SpreadsheetSummary struct {
	Query     string
	Workbooks []WorkbookMatches
	Failures  []Failure
}

// BuildSpreadsheetReport renders a section per workbook with matches and a
// table per matching sheet, followed by totals.
func BuildSpreadsheetReport(s SpreadsheetSummary, now time.Time) *docx.Document {
	d := &docx.Document{}
	header(d, "Spreadsheet Search Results", s.Query, len(s.Workbooks)+len(s.Failures), now)

	var total, withMatches int
	for _, w := range s.Workbooks {
		n := w.Total()
		if n == 0 {
			continue
		}
		total += n
		withMatches++

		d.Heading(1, "File: "+w.FileName)
		for _, sh := range w.Sheets {
			d.Heading(2, "Sheet: "+sh.Sheet)
			d.Table(sh.Columns, sh.Rows)
		}
		d.Paragraph(rule)
		d.Bold(fmt.Sprintf("Matches in %s: %d", w.FileName, n))
		d.Bold(fmt.Sprintf("Sheets with Matches: %d", len(w.Sheets)))
	}

	d.Paragraph(rule)
	d.Bold(fmt.Sprintf("Total Matches Found: %d", total))
	d.Bold(fmt.Sprintf("Files with Matches: %d", withMatches))
	d.Bold(fmt.Sprintf("Files Processed: %d", len(s.Workbooks)))
	if len(s.Failures) > 0 {
		d.Bold(fmt.Sprintf("Failed Files: %d", len(s.Failures)))
		failureList(d, s.Failures)
	}
	return d
}
