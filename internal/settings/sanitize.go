package settings

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
)

// SanitizeAPIKey keeps only ASCII letters and digits.
func SanitizeAPIKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeAPIKeyField handles a submitted key field: the masked
// placeholder keeps the existing key, anything else is sanitized.
func SanitizeAPIKeyField(input, existing string) string {
	if input == constants.DummyAPIKey {
		return existing
	}
	return SanitizeAPIKey(input)
}

// SanitizeAPIURL trims raw and requires an absolute http(s) URL. Only
// https URLs pass the API client's availability check.
func SanitizeAPIURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: api_url: %v", sharedErrors.ErrInvalidSetting, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: api_url must use http or https", sharedErrors.ErrInvalidSetting)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: api_url must include a host", sharedErrors.ErrInvalidSetting)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// MaskAPIKey hides a stored key behind a fixed-width run of bullets.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	return strings.Repeat("•", constants.MaskedKeyLength)
}
