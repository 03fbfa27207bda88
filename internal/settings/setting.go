package settings

import (
	"fmt"
	"strings"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
)

// Setting names one configurable value and where each source keeps it.
type Setting struct {
	Name     string // CLI and API name
	Option   string // persisted option key
	Override string // deployment override (environment variable)
	Default  string
}

var (
	Enabled = Setting{
		Name:     "enabled",
		Option:   constants.OptionEnabled,
		Override: constants.OverrideEnabled,
		Default:  "false",
	}
	APIURL = Setting{
		Name:     "api_url",
		Option:   constants.OptionAPIURL,
		Override: constants.OverrideAPIURL,
		Default:  constants.DefaultAPIURL,
	}
	APIKey = Setting{
		Name:     "api_key",
		Option:   constants.OptionAPIKey,
		Override: constants.OverrideAPIKey,
		Default:  "",
	}
)

// All returns the user-facing settings in display order.
func All() []Setting {
	return []Setting{Enabled, APIURL, APIKey}
}

// ByName looks a setting up by its CLI/API name.
func ByName(name string) (Setting, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, s := range All() {
		if s.Name == key {
			return s, nil
		}
	}
	return Setting{}, fmt.Errorf("%w: %s", sharedErrors.ErrUnknownSetting, name)
}

// Origin tells where an effective value came from.
type Origin string

const (
	OriginOverride Origin = "override"
	OriginOption   Origin = "option"
	OriginDefault  Origin = "default"
)

// Effective is the resolved agent configuration.
type Effective struct {
	Enabled bool
	APIURL  string
	APIKey  string
}
