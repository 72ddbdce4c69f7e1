package etl

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Config is the untyped configuration of a node, shaped by the plugin's
// ConfigSchema. Plugins read it through the typed getters below and convert
// it into their own config struct.
type Config map[string]any

// Has reports whether key is set to a non-nil value.
func (c Config) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

// String returns c[key] as a string, or def when absent or empty.
func (c Config) String(key, def string) string {
	switch v := c[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
	return def
}

// Bool returns c[key] as a bool. Strings "true"/"false" (any case) and
// numbers are accepted since form inputs often post them as text.
func (c Config) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return def
}

// Int returns c[key] as an int; JSON numbers decode as float64.
func (c Config) Int(key string, def int) int {
	switch n := c[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Float returns c[key] as a float64.
func (c Config) Float(key string, def float64) float64 {
	if f, ok := toFloatSafe(c[key]); ok {
		return f
	}
	return def
}

// Rune returns the first rune of a string option.
func (c Config) Rune(key string, def rune) rune {
	if s, ok := c[key].(string); ok && len(s) > 0 {
		if s == `\t` {
			return '\t'
		}
		return []rune(s)[0]
	}
	return def
}

// StringSlice returns a list option. A single string is split on commas.
func (c Config) StringSlice(key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Maps returns a list-of-objects option such as mappings or aggregations.
// A JSON string holding such a list is decoded as well.
func (c Config) Maps(key string) ([]map[string]any, error) {
	switch v := c[key].(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected object, got %T", key, i, item)
			}
			out = append(out, m)
		}
		return out, nil
	case string:
		var out []map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected list of objects, got %T", key, v)
	}
}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

var varRef = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_.]*\}`)

// Interpolate returns a copy where ${name} references inside string values
// are replaced from vars. Unknown references are left untouched.
func (c Config) Interpolate(vars map[string]any) Config {
	if len(vars) == 0 {
		return c
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = interpolateValue(v, vars)
	}
	return out
}

func interpolateValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		if !strings.Contains(t, "${") {
			return t
		}
		return varRef.ReplaceAllStringFunc(t, func(ref string) string {
			if val, ok := vars[ref[2:len(ref)-1]]; ok {
				return fmt.Sprint(val)
			}
			return ref
		})
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = interpolateValue(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = interpolateValue(item, vars)
		}
		return out
	default:
		return v
	}
}
