package settings

import (
	"github.com/spf13/viper"
)

// OverrideSource holds deployment-time overrides. Values are captured once
// when the source is built and never change afterwards.
type OverrideSource struct {
	values map[string]string
}

// NewOverrideSource snapshots overrides from v: the "overrides.<name>" keys
// of the config file, with each setting's environment variable bound on top.
func NewOverrideSource(v *viper.Viper) *OverrideSource {
	src := &OverrideSource{values: make(map[string]string)}
	if v == nil {
		return src
	}
	for _, s := range All() {
		key := "overrides." + s.Name
		_ = v.BindEnv(key, s.Override)
		if v.IsSet(key) {
			src.values[s.Name] = v.GetString(key)
		}
	}
	return src
}

// Origin implements Source.
func (o *OverrideSource) Origin() Origin { return OriginOverride }

// Lookup implements Source.
func (o *OverrideSource) Lookup(s Setting) (string, bool, error) {
	if o == nil {
		return "", false, nil
	}
	value, ok := o.values[s.Name]
	return value, ok, nil
}

// Any reports whether at least one setting is overridden.
func (o *OverrideSource) Any() bool {
	return o != nil && len(o.values) > 0
}
