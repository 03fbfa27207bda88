package settings

import (
	"fmt"
	"strings"

	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
)

// Source is one configuration layer.
type Source interface {
	Origin() Origin
	Lookup(s Setting) (string, bool, error)
}

// Resolver queries its sources in order and returns the first value found,
// falling back to the setting's default. Values are never merged.
type Resolver struct {
	sources []Source
}

// NewResolver builds a resolver; sources are queried in the given order.
func NewResolver(sources ...Source) *Resolver {
	filtered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			filtered = append(filtered, src)
		}
	}
	return &Resolver{sources: filtered}
}

// Lookup returns the effective raw value of s and its origin.
func (r *Resolver) Lookup(s Setting) (string, Origin, error) {
	for _, src := range r.sources {
		value, ok, err := src.Lookup(s)
		if err != nil {
			return "", "", fmt.Errorf("lookup %s from %s: %w", s.Name, src.Origin(), err)
		}
		if ok {
			return value, src.Origin(), nil
		}
	}
	return s.Default, OriginDefault, nil
}

// Overridden reports whether a deployment override defines s.
func (r *Resolver) Overridden(s Setting) bool {
	for _, src := range r.sources {
		if src.Origin() != OriginOverride {
			continue
		}
		if _, ok, err := src.Lookup(s); err == nil && ok {
			return true
		}
	}
	return false
}

// Effective resolves every setting. The enabled flag is parsed strictly.
func (r *Resolver) Effective() (Effective, error) {
	var eff Effective

	rawEnabled, _, err := r.Lookup(Enabled)
	if err != nil {
		return eff, err
	}
	enabled, err := ParseEnabled(rawEnabled)
	if err != nil {
		return eff, err
	}
	eff.Enabled = enabled

	if eff.APIURL, _, err = r.Lookup(APIURL); err != nil {
		return eff, err
	}
	if eff.APIKey, _, err = r.Lookup(APIKey); err != nil {
		return eff, err
	}

	return eff, nil
}

// ParseEnabled converts a loosely typed flag into a bool. Empty means off.
func ParseEnabled(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, fmt.Errorf("%w: enabled=%q", sharedErrors.ErrInvalidSetting, raw)
}
