package etl

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ── ConfigSchema ───────────────────────────────────────────
// Declarative description of a plugin's configuration form.
// Frontends render forms from it; Validate checks untyped configs against it.

// FieldType is the input kind of a configuration field.
type FieldType string

const (
	FieldString        FieldType = "STRING"
	FieldNumber        FieldType = "NUMBER"
	FieldInteger       FieldType = "INTEGER"
	FieldBoolean       FieldType = "BOOLEAN"
	FieldPassword      FieldType = "PASSWORD"
	FieldTextarea      FieldType = "TEXTAREA"
	FieldSelect        FieldType = "SELECT"
	FieldMultiSelect   FieldType = "MULTI_SELECT"
	FieldJSON          FieldType = "JSON"
	FieldSQL           FieldType = "SQL"
	FieldFilePath      FieldType = "FILE_PATH"
	FieldTableSelector FieldType = "TABLE_SELECTOR"
	FieldColumnMapping FieldType = "COLUMN_MAPPING"
)

// FieldValidation holds optional constraints on a field value.
type FieldValidation struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// ConfigField describes a single configuration input.
type ConfigField struct {
	Name         string           `json:"name"`
	Label        string           `json:"label"`
	Description  string           `json:"description,omitempty"`
	Type         FieldType        `json:"type"`
	Required     bool             `json:"required"`
	DefaultValue any              `json:"defaultValue,omitempty"`
	Options      []string         `json:"options,omitempty"`
	Validation   *FieldValidation `json:"validation,omitempty"`
}

// ConfigSchema is the full form description of a plugin.
type ConfigSchema struct {
	Fields []ConfigField `json:"fields"`
}

// Field looks up a field descriptor by name.
func (s ConfigSchema) Field(name string) (ConfigField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ConfigField{}, false
}

// ApplyDefaults returns a copy of cfg with unset fields filled from their
// declared default values.
func (s ConfigSchema) ApplyDefaults(cfg Config) Config {
	out := cfg.Clone()
	for _, f := range s.Fields {
		if f.DefaultValue != nil && !out.Has(f.Name) {
			out[f.Name] = f.DefaultValue
		}
	}
	return out
}

// Validate checks cfg against the declared fields. plugin names the owner in
// the returned ConfigError.
func (s ConfigSchema) Validate(plugin string, cfg Config) error {
	for _, f := range s.Fields {
		v, present := cfg[f.Name]
		if !present || v == nil || v == "" {
			if f.Required {
				return ConfigErrorf(plugin, "%s is required", f.Name)
			}
			continue
		}
		if err := f.check(v); err != nil {
			return ConfigErrorf(plugin, "%s: %v", f.Name, err)
		}
	}
	return nil
}

func (f ConfigField) check(v any) error {
	switch f.Type {
	case FieldNumber, FieldInteger:
		n, ok := toFloatSafe(v)
		if !ok {
			return fmt.Errorf("expected a number, got %T", v)
		}
		if f.Type == FieldInteger && n != float64(int64(n)) {
			return fmt.Errorf("expected an integer, got %v", v)
		}
		return f.checkRange(n)
	case FieldBoolean:
		switch b := v.(type) {
		case bool:
		case string:
			if _, err := strconv.ParseBool(strings.TrimSpace(b)); err != nil {
				return fmt.Errorf("expected true or false, got %q", b)
			}
		case float64, int:
		default:
			return fmt.Errorf("expected a boolean, got %T", v)
		}
	case FieldSelect:
		s := fmt.Sprint(v)
		if len(f.Options) > 0 && !slices.Contains(f.Options, s) {
			return fmt.Errorf("%q is not one of %v", s, f.Options)
		}
	case FieldMultiSelect:
		items := Config{f.Name: v}.StringSlice(f.Name)
		for _, s := range items {
			if len(f.Options) > 0 && !slices.Contains(f.Options, s) {
				return fmt.Errorf("%q is not one of %v", s, f.Options)
			}
		}
	case FieldJSON, FieldColumnMapping:
		switch v.(type) {
		case string, map[string]any, []any, []map[string]any:
		default:
			return fmt.Errorf("expected JSON, got %T", v)
		}
	default:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		return f.checkText(s)
	}
	return nil
}

func (f ConfigField) checkText(s string) error {
	rule := f.Validation
	if rule == nil {
		return nil
	}
	n := utf8.RuneCountInString(s)
	if rule.MinLength != nil && n < *rule.MinLength {
		return f.ruleError("must be at least %d characters", *rule.MinLength)
	}
	if rule.MaxLength != nil && n > *rule.MaxLength {
		return f.ruleError("must be at most %d characters", *rule.MaxLength)
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", rule.Pattern, err)
		}
		if !re.MatchString(s) {
			return f.ruleError("must match %s", rule.Pattern)
		}
	}
	return nil
}

func (f ConfigField) checkRange(n float64) error {
	rule := f.Validation
	if rule == nil {
		return nil
	}
	if rule.Min != nil && n < *rule.Min {
		return f.ruleError("must be >= %v", *rule.Min)
	}
	if rule.Max != nil && n > *rule.Max {
		return f.ruleError("must be <= %v", *rule.Max)
	}
	return nil
}

func (f ConfigField) ruleError(format string, args ...any) error {
	if f.Validation != nil && f.Validation.Message != "" {
		return fmt.Errorf("%s", f.Validation.Message)
	}
	return fmt.Errorf(format, args...)
}

// IntPtr and FloatPtr help build FieldValidation literals.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
