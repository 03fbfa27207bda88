package website

import "strings"

const (
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// ValidHostname reports whether domain is a syntactically valid hostname:
// dot-separated labels of letters, digits and inner hyphens. A single
// trailing dot is accepted.
func ValidHostname(domain string) bool {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" || len(domain) > maxHostnameLength {
		return false
	}

	for _, label := range strings.Split(domain, ".") {
		if !validLabel(label) {
			return false
		}
	}
	return true
}

func validLabel(label string) bool {
	if label == "" || len(label) > maxLabelLength {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeDomain lower-cases domain and strips surrounding space and a
// trailing dot, so equivalent spellings share one cache entry.
func NormalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
