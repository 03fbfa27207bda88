package vulnz

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
)

// reservedPrefixes are special-purpose ranges that netip's predicates do
// not already cover.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// CheckEndpoint validates the API base URL and key without any network
// I/O. Credentials are only ever sent over https to a public host.
func CheckEndpoint(baseURL, apiKey string) error {
	if baseURL == "" || apiKey == "" {
		return unavailable("api url and api key are required")
	}

	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || u.Opaque != "" || strings.ContainsAny(baseURL, " \t\r\n") {
		return unavailable("api url is not a valid absolute url")
	}

	if u.Scheme != "https" {
		return unavailable("api url must use https")
	}

	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return unavailable("api url has no host")
	}
	if strings.EqualFold(host, "localhost") || host == "127.0.0.1" {
		return unavailable("api url points at localhost")
	}

	if addr, err := netip.ParseAddr(host); err == nil && !IsPublicAddr(addr) {
		return unavailable(fmt.Sprintf("api host %s is not a public address", host))
	}

	return nil
}

// IsPublicAddr reports whether addr is outside every private, loopback,
// link-local, multicast and reserved range.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	if !addr.IsValid() ||
		addr.IsUnspecified() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() {
		return false
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}

func unavailable(reason string) error {
	return fmt.Errorf("%w: %s", sharedErrors.ErrUnavailable, reason)
}
