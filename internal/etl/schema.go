package etl

import (
	"encoding/json"
	"math"
	"time"
)

// ── Schema ─────────────────────────────────────────────────
// Schemas describe the shape of a record sequence. Readers infer them from
// the underlying format, transformers derive them from their input schema.

// DataType is the semantic type of a field.
type DataType string

const (
	TypeString    DataType = "STRING"
	TypeInteger   DataType = "INTEGER"
	TypeLong      DataType = "LONG"
	TypeDouble    DataType = "DOUBLE"
	TypeBoolean   DataType = "BOOLEAN"
	TypeDate      DataType = "DATE"
	TypeDatetime  DataType = "DATETIME"
	TypeTimestamp DataType = "TIMESTAMP"
	TypeDecimal   DataType = "DECIMAL"
	TypeBinary    DataType = "BINARY"
	TypeJSON      DataType = "JSON"
	TypeArray     DataType = "ARRAY"
	TypeMap       DataType = "MAP"
	TypeUnknown   DataType = "UNKNOWN"
)

// Field describes a single column in a dataset.
type Field struct {
	Name        string   `json:"name"`
	Type        DataType `json:"type"`
	Nullable    bool     `json:"nullable"`
	Description string   `json:"description,omitempty"`
}

// Schema is an ordered list of uniquely named fields.
type Schema struct {
	Fields []Field `json:"fields"`
}

// NewSchema builds a schema, rejecting duplicate field names.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{Fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		if err := s.AddField(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddField appends f. Field names must be unique within a schema.
func (s *Schema) AddField(f Field) error {
	if _, ok := s.Field(f.Name); ok {
		return ConfigErrorf("schema", "duplicate field %q", f.Name)
	}
	s.Fields = append(s.Fields, f)
	return nil
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields; a nil schema has none.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Fields)
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{Fields: make([]Field, len(s.Fields))}
	copy(c.Fields, s.Fields)
	return c
}

// InferType maps a Go value to the closest DataType.
// A nil value is reported as STRING, matching what text formats produce.
func InferType(v any) DataType {
	switch n := v.(type) {
	case nil, string:
		return TypeString
	case bool:
		return TypeBoolean
	case int8, int16, int32, uint8, uint16:
		return TypeInteger
	case int:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return TypeInteger
		}
		return TypeLong
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return TypeInteger
		}
		return TypeLong
	case uint, uint32, uint64:
		return TypeLong
	case float32, float64:
		return TypeDouble
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return TypeLong
		}
		return TypeDouble
	case time.Time:
		return TypeTimestamp
	case []byte:
		return TypeBinary
	case map[string]any, *Record:
		return TypeJSON
	case []any:
		return TypeArray
	default:
		return TypeUnknown
	}
}

// SchemaFromRecord infers a schema from the values of one record.
func SchemaFromRecord(r *Record) *Schema {
	s := &Schema{}
	if r == nil {
		return s
	}
	r.Each(func(name string, v any) {
		s.Fields = append(s.Fields, Field{Name: name, Type: InferType(v), Nullable: true})
	})
	return s
}

// deriveSchemaFromRecords builds a schema from the keys present in records.
// It preserves field definitions from hint where available and types new
// fields from the first non-nil value seen.
func deriveSchemaFromRecords(records []*Record, hint *Schema) *Schema {
	if len(records) == 0 {
		return hint
	}

	seen := make(map[string]int)
	out := &Schema{}
	for _, r := range records {
		r.Each(func(name string, v any) {
			idx, ok := seen[name]
			if !ok {
				f, known := hint.Field(name)
				if !known {
					f = Field{Name: name, Type: TypeUnknown, Nullable: true}
				}
				seen[name] = len(out.Fields)
				out.Fields = append(out.Fields, f)
				idx = seen[name]
			}
			if out.Fields[idx].Type == TypeUnknown && v != nil {
				out.Fields[idx].Type = InferType(v)
			}
		})
	}
	for i := range out.Fields {
		if out.Fields[i].Type == TypeUnknown {
			out.Fields[i].Type = TypeString
		}
	}
	return out
}
