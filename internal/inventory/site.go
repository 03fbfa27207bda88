package inventory

import (
	"net/url"
	"strings"
)

// Site is the public identity of the installation.
type Site struct {
	URL   string
	Title string
	// Domain is empty when URL has no host.
	Domain   string
	IsSSL    bool
	LoginURL string
}

// NewSite derives the site identity from its public URL.
func NewSite(siteURL, title string) Site {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	site := Site{URL: siteURL, Title: strings.TrimSpace(title)}

	u, err := url.Parse(siteURL)
	if err != nil {
		return site
	}

	site.Domain = strings.ToLower(u.Hostname())
	site.IsSSL = strings.EqualFold(u.Scheme, "https")
	if site.Domain != "" {
		site.LoginURL = siteURL + "/wp-login.php"
	}
	return site
}
