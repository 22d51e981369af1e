package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dotted-path access for the `codedive config` subcommands. The config is
// round-tripped through its JSON form so paths use the same names the file
// does (e.g. "general.defaultProvider", "providers.ollama.defaultModel").

// toMap renders the config as a generic JSON map.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap writes a generic JSON map back onto the config.
func fromMap(m map[string]any, cfg *Config) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// GetByPath returns the value at a dotted path. Numeric path elements index
// into arrays.
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var cur any = m
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			val, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			cur = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", cur, key)
		}
	}
	return cur, nil
}

// SetByPath sets the value at a dotted path, creating intermediate objects
// as needed, and writes the result back onto cfg. String values are coerced
// to bool or number when they parse as one.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := toMap(cfg)
	if err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	node := m
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key]
		if !ok {
			next := make(map[string]any)
			node[key] = next
			node = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot traverse into %T at %s", child, key)
		}
		node = childMap
	}
	node[keys[len(keys)-1]] = coerceValue(value)

	return fromMap(m, cfg)
}

// coerceValue converts CLI string input to the type the config field wants.
func coerceValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of the config with provider API keys masked,
// for display by `codedive config list`.
func Sanitize(cfg *Config) *Config {
	m, err := toMap(cfg)
	if err != nil {
		return cfg
	}
	var clean Config
	if err := fromMap(m, &clean); err != nil {
		return cfg
	}
	for name, prov := range clean.Providers {
		if prov.APIKey != "" {
			prov.APIKey = maskString(prov.APIKey)
		}
		clean.Providers[name] = prov
	}
	return &clean
}

// maskString keeps the first and last four characters of a secret; short
// secrets are fully masked.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens the config into path -> value entries.
func ListPaths(cfg *Config) map[string]any {
	m, err := toMap(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(path, child, out)
			continue
		}
		out[path] = v
	}
}
