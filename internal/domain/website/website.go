package website

import (
	"encoding/json"
	"strings"
)

// Record is the Vulnz API's view of one website. It decodes any JSON
// object: members with unexpected types or names are kept verbatim in
// Extra and written back on encode.
type Record struct {
	Domain string
	Title  string
	IsSSL  bool
	Meta   map[string]any
	// Extensions is nil when the API response carried no usable plugin list.
	Extensions []Extension
	Extra      map[string]json.RawMessage
}

// Extension is an installed plugin as reported back by the API.
type Extension struct {
	Slug               string
	Title              string
	Version            string
	HasVulnerabilities bool
	Vulnerabilities    []Reference
	Extra              map[string]json.RawMessage
}

// IsVulnerable reports whether the API flagged the plugin or listed any
// vulnerability reference for it.
func (e Extension) IsVulnerable() bool {
	return e.HasVulnerabilities || len(e.Vulnerabilities) > 0
}

// DisplayName falls back to the slug for plugins the API has no title for.
func (e Extension) DisplayName() string {
	if strings.TrimSpace(e.Title) != "" {
		return e.Title
	}
	return e.Slug
}

// HasExtensions distinguishes "no plugin data" from an empty plugin list.
func (r *Record) HasExtensions() bool {
	return r != nil && r.Extensions != nil
}

// VulnerableCount counts plugins with at least one known vulnerability.
func (r *Record) VulnerableCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, ext := range r.Extensions {
		if ext.IsVulnerable() {
			n++
		}
	}
	return n
}

// InstalledExtension is a locally installed plugin sent on sync.
type InstalledExtension struct {
	Slug    string `json:"slug"`
	Version string `json:"version"`
}

// Meta keys sent with every update.
const (
	MetaAdminURL  = "Admin"
	MetaWPVersion = "WP Version"
)

// Update carries the descriptive attributes sent on upsert.
type Update struct {
	Title   string               `json:"title"`
	IsSSL   bool                 `json:"is_ssl"`
	Meta    map[string]string    `json:"meta"`
	Plugins []InstalledExtension `json:"wordpress-plugins"`
}

// CreateRequest is the POST body used when the API does not know the
// domain yet: the domain followed by the update's fields.
type CreateRequest struct {
	Domain string `json:"domain"`
	*Update
}
