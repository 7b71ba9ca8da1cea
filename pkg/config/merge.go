package config

import "dario.cat/mergo"

// OverrideDefaults merges a tenant- or test-supplied partial Defaults onto
// the process-wide defaults, non-zero fields in override winning. Mirrors
// the teacher's queue-config merge in pkg/config/loader.go (mergo.Merge with
// mergo.WithOverride) but applied to ALUSKORT's threshold/budget defaults
// instead of YAML queue settings.
func OverrideDefaults(base *Defaults, override *Defaults) (*Defaults, error) {
	merged := *base
	if override == nil {
		return &merged, nil
	}
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return nil, err
	}
	return &merged, nil
}
