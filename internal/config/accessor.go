package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Every section is a flat struct of scalars, so a path is always
// "<section>.<key>" using the file's key names (e.g. "twitter.botUserId").

// tree renders cfg as section -> key -> value using the same keys as the
// config file.
func tree(cfg *Config) (map[string]map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t map[string]map[string]any
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	for _, p := range omittedWhenEmpty {
		if _, ok := t[p[0]][p[1]]; !ok && t[p[0]] != nil {
			t[p[0]][p[1]] = ""
		}
	}
	return t, nil
}

// omittedWhenEmpty lists the omitempty string keys so they stay addressable.
var omittedWhenEmpty = [][2]string{{"general", "logFile"}, {"replies", "rulesPath"}}

func splitPath(path string) (section, key string, err error) {
	section, key, ok := strings.Cut(path, ".")
	if !ok || section == "" || key == "" || strings.Contains(key, ".") {
		return "", "", fmt.Errorf("invalid path %q: want <section>.<key>", path)
	}
	return section, key, nil
}

// GetByPath returns the value at a "<section>.<key>" path.
func GetByPath(cfg *Config, path string) (any, error) {
	section, key, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	sec, ok := t[section]
	if !ok {
		return nil, fmt.Errorf("unknown section %q", section)
	}
	val, ok := sec[key]
	if !ok {
		return nil, fmt.Errorf("unknown key %q in section %s", key, section)
	}
	return val, nil
}

// SetByPath parses value according to the current type at path and stores it
// in cfg. Unknown paths are rejected rather than created.
func SetByPath(cfg *Config, path, value string) error {
	current, err := GetByPath(cfg, path)
	if err != nil {
		return err
	}
	parsed, err := parseAs(current, value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// Decode a one-key document over cfg so only that field changes.
	section, key, _ := splitPath(path)
	patch, err := yaml.Marshal(map[string]map[string]any{section: {key: parsed}})
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(patch, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// parseAs converts value to the kind of current. IDs and tokens stay strings
// even when they look numeric.
func parseAs(current any, value string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expects true or false, got %q", value)
		}
		return b, nil
	case int, int64, float64:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("expects a number, got %q", value)
		}
		return f, nil
	default:
		return value, nil
	}
}

// Sanitize returns a copy of the config with credentials masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Twitter.ConsumerSecret = maskString(c.Twitter.ConsumerSecret)
	c.Twitter.AccessTokenSecret = maskString(c.Twitter.AccessTokenSecret)
	c.Twitter.AccessToken = maskString(c.Twitter.AccessToken)
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	t, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	for section, keys := range t {
		for key, val := range keys {
			out[section+"."+key] = val
		}
	}
	return out
}

// Paths returns the settable paths in sorted order.
func Paths(cfg *Config) []string {
	m := ListPaths(cfg)
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
