package website

import (
	"fmt"
	"sort"
	"strings"
)

// SortOrder selects the secondary key used when ordering extensions.
type SortOrder string

const (
	SortByTitle SortOrder = "title"
	SortBySlug  SortOrder = "slug"
)

// ParseSortOrder accepts "title" or "slug" (case-insensitive).
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortByTitle:
		return SortByTitle, nil
	case SortBySlug:
		return SortBySlug, nil
	}
	return "", fmt.Errorf("unsupported sort order %q", s)
}

// SortExtensions orders vulnerable extensions first, then by a
// case-insensitive comparison of the title or slug.
func SortExtensions(exts []Extension, order SortOrder) {
	sort.SliceStable(exts, func(i, j int) bool {
		vi, vj := exts[i].IsVulnerable(), exts[j].IsVulnerable()
		if vi != vj {
			return vi
		}
		return compareFold(sortKey(exts[i], order), sortKey(exts[j], order)) < 0
	})
}

func sortKey(e Extension, order SortOrder) string {
	if order == SortBySlug {
		return e.Slug
	}
	return e.Title
}

// compareFold compares lower-cased strings, like strcasecmp.
func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
