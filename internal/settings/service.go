package settings

import (
	"fmt"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
)

// View is one row of the settings screen.
type View struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Origin     Origin `json:"origin"`
	Overridden bool   `json:"overridden"`
}

// Service backs the settings screen: it resolves, displays and edits the
// persisted options. Overridden settings are read-only.
type Service struct {
	resolver *Resolver
	store    *OptionStore
}

// NewService wires a resolver and the option store it reads from.
func NewService(resolver *Resolver, store *OptionStore) *Service {
	return &Service{resolver: resolver, store: store}
}

// Resolver exposes the underlying resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Effective resolves the current configuration.
func (s *Service) Effective() (Effective, error) {
	return s.resolver.Effective()
}

// Views lists every setting with its effective value; the API key is masked.
func (s *Service) Views() ([]View, error) {
	views := make([]View, 0, len(All()))
	for _, setting := range All() {
		value, origin, err := s.resolver.Lookup(setting)
		if err != nil {
			return nil, err
		}
		if setting == APIKey {
			value = MaskAPIKey(value)
		}
		views = append(views, View{
			Name:       setting.Name,
			Value:      value,
			Origin:     origin,
			Overridden: origin == OriginOverride,
		})
	}
	return views, nil
}

// AnyOverridden reports whether any setting is fixed by an override.
func (s *Service) AnyOverridden() bool {
	for _, setting := range All() {
		if s.resolver.Overridden(setting) {
			return true
		}
	}
	return false
}

// Set validates, sanitizes and persists a setting by name.
func (s *Service) Set(name, value string) error {
	setting, err := ByName(name)
	if err != nil {
		return err
	}
	if s.resolver.Overridden(setting) {
		return fmt.Errorf("%w: %s", sharedErrors.ErrSettingOverridden, setting.Name)
	}

	var stored string
	switch setting {
	case Enabled:
		enabled, err := ParseEnabled(value)
		if err != nil {
			return err
		}
		stored = "0"
		if enabled {
			stored = "1"
		}
	case APIURL:
		if stored, err = SanitizeAPIURL(value); err != nil {
			return err
		}
	case APIKey:
		existing, _, err := s.store.Get(setting.Option)
		if err != nil {
			return fmt.Errorf("failed to read existing api key: %w", err)
		}
		stored = SanitizeAPIKeyField(value, existing)
	}

	if err := s.store.Set(setting.Option, stored); err != nil {
		return fmt.Errorf("failed to save %s: %w", setting.Name, err)
	}
	return nil
}

// Unset removes a persisted setting so its default applies again.
func (s *Service) Unset(name string) error {
	setting, err := ByName(name)
	if err != nil {
		return err
	}
	if err := s.store.Delete(setting.Option); err != nil {
		return fmt.Errorf("failed to delete %s: %w", setting.Name, err)
	}
	return nil
}

// RecordLastRun stores the time of the latest scheduled sync.
func (s *Service) RecordLastRun(at time.Time) error {
	return s.store.Set(constants.OptionLastCronRun, at.UTC().Format(time.RFC3339))
}

// LastRun returns the time of the latest scheduled sync, if any.
func (s *Service) LastRun() (time.Time, bool, error) {
	raw, ok, err := s.store.Get(constants.OptionLastCronRun)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: last run %q", sharedErrors.ErrInvalidSetting, raw)
	}
	return at, true, nil
}

// Purge deletes every option the agent owns.
func (s *Service) Purge() error {
	keys := []string{constants.OptionLastCronRun}
	for _, setting := range All() {
		keys = append(keys, setting.Option)
	}
	for _, key := range keys {
		if err := s.store.Delete(key); err != nil {
			return fmt.Errorf("failed to delete option %s: %w", key, err)
		}
	}
	return nil
}
