package query

import (
	"fmt"
	"strings"

	"github.com/cwoolley/playbook/internal/domain"
)

// baseClause excludes folders and trashed items from every search.
const baseClause = "mimeType != '" + domain.MimeFolder + "' and trashed = false"

// Escape makes s safe inside a single-quoted Drive query literal.
// Backslashes are escaped first so an escaped quote is not double-escaped.
func Escape(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(escaped, `'`, `\'`)
}

// Build translates terms and a filter into a Drive query string.
//
// Each term becomes (name contains 't' or fullText contains 't'); multiple
// terms are ANDed. containerIDs are only consulted when the filter has a
// scope; an empty list still admits items shared with the caller.
func Build(terms []string, f Filter, containerIDs []string) string {
	clauses := []string{baseClause}

	mimes := f.MimeClass.Mimes()
	alts := make([]string, len(mimes))
	for i, m := range mimes {
		alts[i] = fmt.Sprintf("mimeType = '%s'", m)
	}
	clauses = append(clauses, "("+strings.Join(alts, " or ")+")")

	if tok := f.NameHint.Token(); tok != "" {
		clauses = append(clauses, fmt.Sprintf("name contains '%s'", tok))
	}

	if f.Scope != ScopeNone {
		clauses = append(clauses, scopeClause(containerIDs))
	}

	if tc := termsClause(terms); tc != "" {
		clauses = append(clauses, tc)
	}

	return strings.Join(clauses, " and ")
}

func termClause(term string) string {
	t := Escape(term)
	return fmt.Sprintf("(name contains '%s' or fullText contains '%s')", t, t)
}

func termsClause(terms []string) string {
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return termClause(terms[0])
	}
	groups := make([]string, len(terms))
	for i, t := range terms {
		groups[i] = termClause(t)
	}
	return "(" + strings.Join(groups, " and ") + ")"
}

// ParentsClause matches items whose parent is any of ids.
func ParentsClause(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("'%s' in parents", Escape(id))
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func scopeClause(ids []string) string {
	if len(ids) == 0 {
		return "(sharedWithMe = true)"
	}
	return "(" + ParentsClause(ids) + " or sharedWithMe = true)"
}
