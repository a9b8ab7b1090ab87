package chartconfig

import (
	"bytes"
	"errors"
	"fmt"

	"amr-charts/internal/energy"

	"gopkg.in/yaml.v3"
)

const inheritsKey = "inherits_from"

// Resolve flattens a chart's inheritance chain, applies overrides and returns a validated configuration.
// Keys set to null in a child remove the inherited value.
func (r *Registry) Resolve(name string, overrides map[string]any) (*ReportConfig, error) {
	if _, ok := overrides[inheritsKey]; ok {
		return nil, &energy.InvalidConfigError{Field: inheritsKey, Reason: "overrides cannot change inheritance"}
	}

	// 1. Walk up to the root, bounded by the depth limit
	chain, err := r.chain(name)
	if err != nil {
		return nil, err
	}

	// 2. Merge root first so that each child replaces its parent's keys
	merged := map[string]any{}
	for i := len(chain) - 1; i >= 0; i-- {
		mergeInto(merged, r.raw[chain[i]])
	}
	mergeInto(merged, overrides)
	delete(merged, inheritsKey)
	if _, ok := merged["name"]; !ok {
		merged["name"] = name
	}

	// 3. Decode strictly and validate
	cfg, err := decode(merged)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", name, err)
	}
	return cfg, nil
}

// chain returns [name, parent, grandparent, ...].
func (r *Registry) chain(name string) ([]string, error) {
	var chain []string
	cur := name
	for {
		def, ok := r.raw[cur]
		if !ok {
			return nil, &energy.UnknownConfigError{Name: cur}
		}
		chain = append(chain, cur)
		if len(chain) > r.maxDepth {
			return nil, &energy.ConfigTooDeepError{Name: name, Chain: chain, Limit: r.maxDepth}
		}
		parent, _ := def[inheritsKey].(string)
		if parent == "" {
			return chain, nil
		}
		cur = parent
	}
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func decode(raw map[string]any) (*ReportConfig, error) {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, &energy.InvalidConfigError{Field: "config", Reason: err.Error()}
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var cfg ReportConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, energy.ErrConfig) {
			return nil, err
		}
		return nil, &energy.InvalidConfigError{Field: "config", Reason: err.Error()}
	}
	return &cfg, nil
}

// Marshal renders a resolved configuration as YAML.
func Marshal(cfg *ReportConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
