package etl

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All readers emit Records, all writers consume Records.
// Field order is insertion order and survives Clone and JSON encoding.

// Record is a single row of data flowing through the pipeline.
// A Record is owned by whichever stage currently holds it.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, any]()}
}

// RecordFromPairs builds a record from alternating name/value arguments.
// It panics on an odd argument count or a non-string name; intended for
// literals in code and tests.
func RecordFromPairs(kv ...any) *Record {
	if len(kv)%2 != 0 {
		panic("etl: RecordFromPairs needs an even number of arguments")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set stores value under name. New names are appended; existing names keep
// their position.
func (r *Record) Set(name string, value any) {
	r.fields.Set(name, value)
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (any, bool) {
	return r.fields.Get(name)
}

// Value returns the value stored under name, or nil.
func (r *Record) Value(name string) any {
	v, _ := r.fields.Get(name)
	return v
}

// Has reports whether name is present (even with a nil value).
func (r *Record) Has(name string) bool {
	_, ok := r.fields.Get(name)
	return ok
}

// Delete removes name from the record.
func (r *Record) Delete(name string) {
	r.fields.Delete(name)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return r.fields.Len()
}

// Fields returns the field names in order.
func (r *Record) Fields() []string {
	names := make([]string, 0, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// Each calls fn for every field in order.
func (r *Record) Each(fn func(name string, value any)) {
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

// Clone returns a shallow copy with the same field order.
func (r *Record) Clone() *Record {
	c := NewRecord()
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		c.fields.Set(p.Key, p.Value)
	}
	return c
}

// Map returns an unordered copy of the fields.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		m[p.Key] = p.Value
	}
	return m
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.fields.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	r.fields = m
	return nil
}
