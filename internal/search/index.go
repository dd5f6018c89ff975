// Package search provides a small, deterministic, concurrency-safe in-memory
// name index used by the live search endpoint.
//
// Matching is a case-insensitive substring test. Both the indexed names and
// the query are normalized to NFKC, folded with Unicode case folding and have
// their whitespace collapsed, so "ÉMILIA" and "émilia " match the same
// queries. Results keep input order; there is no ranking and no pagination.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ----------------------------------------------------------------------------
// Options

// Option tunes an Index.
type Option func(*config)

type config struct {
	maxResults int
}

func defaultConfig() config {
	return config{maxResults: 0}
}

// WithMaxResults caps the number of matches returned by Match. Zero or a
// negative value means no cap.
func WithMaxResults(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxResults = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

// Index is immutable after construction and safe for concurrent use.
type Index struct {
	cfg  config
	keys []string
}

// NewIndex folds every name once. Match reports positions into names.
func NewIndex(names []string, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	fold := cases.Fold()
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = Key(fold, n)
	}
	return &Index{cfg: cfg, keys: keys}
}

// Len returns the number of indexed names.
func (i *Index) Len() int { return len(i.keys) }

// Match returns the positions of names that contain query, in input order.
// A blank query matches nothing.
func (i *Index) Match(query string) []int {
	q := Key(cases.Fold(), query)
	if q == "" {
		return nil
	}
	var out []int
	for pos, k := range i.keys {
		if !strings.Contains(k, q) {
			continue
		}
		out = append(out, pos)
		if i.cfg.maxResults > 0 && len(out) >= i.cfg.maxResults {
			break
		}
	}
	return out
}

// Key normalizes s for comparison. A Caser is stateful, so callers pass
// their own.
func Key(fold cases.Caser, s string) string {
	s = normalizeWhitespace(norm.NFKC.String(s))
	return fold.String(strings.TrimSpace(s))
}

// ----------------------------------------------------------------------------
// Helpers

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
