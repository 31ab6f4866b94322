// Package query turns raw comma-separated search strings into terms and
// translates terms plus filters into Drive query syntax.
package query

import (
	"strings"

	"github.com/cwoolley/playbook/internal/domain"
)

// Parse splits raw on commas, trims each segment and drops empty ones.
// Order is preserved and duplicates are kept. An input with no usable
// terms returns domain.ErrEmptyQuery.
func Parse(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil, domain.ErrEmptyQuery
	}
	return terms, nil
}

// Join renders terms back into the canonical comma-separated form.
func Join(terms []string) string {
	return strings.Join(terms, ", ")
}
