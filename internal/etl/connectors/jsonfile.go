package connectors

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ── JSON File Connector ────────────────────────────────────
// Reads a top-level array, a nested array addressed by a $.a.b path, or a
// single object. Writes the whole buffer atomically on commit.

// JSON is the JSON file connector.
type JSON struct{}

func (JSON) Type() string        { return "json" }
func (JSON) DisplayName() string { return "JSON File" }
func (JSON) Description() string { return "Read and write JSON files" }
func (JSON) SupportsRead() bool  { return true }
func (JSON) SupportsWrite() bool { return true }

func (JSON) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "filePath", Label: "File Path", Type: etl.FieldFilePath, Required: true},
		{Name: "jsonPath", Label: "JSON Path", Type: etl.FieldString,
			Description: "Path to the record array, e.g. $.data.items",
			Validation:  &etl.FieldValidation{Pattern: `^\$?(\.?[^.]+)*$`, Message: "jsonPath must look like $.a.b"}},
		{Name: "prettyPrint", Label: "Pretty Print", Type: etl.FieldBoolean, DefaultValue: true},
	}}
}

func (j JSON) Validate(cfg etl.Config) error {
	return j.ConfigSchema().Validate(j.Type(), cfg)
}

func (j JSON) TestConnection(_ context.Context, cfg etl.Config) error {
	return checkFilePath(j.Type(), cfg.String("filePath", ""))
}

func (JSON) CreateReader(cfg etl.Config) (etl.Reader, error) {
	return &jsonReader{
		filePath: cfg.String("filePath", ""),
		path:     jsonPathParts(cfg.String("jsonPath", "")),
	}, nil
}

func (JSON) CreateWriter(cfg etl.Config) (etl.Writer, error) {
	return &jsonWriter{
		filePath: cfg.String("filePath", ""),
		pretty:   cfg.Bool("prettyPrint", true),
	}, nil
}

// jsonPathParts turns "$.data.items" into ["data", "items"].
func jsonPathParts(p string) []string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

// ── Reader ──

type jsonReader struct {
	filePath string
	path     []string
	records  []*etl.Record
	schema   *etl.Schema
	loaded   bool
}

func (r *jsonReader) Open(context.Context) error {
	f, err := os.Open(r.filePath)
	if err != nil {
		return etl.ConnectionError("open json", err)
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	root, err := decodeOrdered(dec)
	if err != nil {
		return etl.ConnectionError("parse json", err)
	}

	switch v := root.(type) {
	case []any:
		r.records, err = recordsOf(v)
	case *etl.Record:
		if items, ok := extractPath(v, r.path).([]any); ok && len(r.path) > 0 {
			r.records, err = recordsOf(items)
		} else {
			r.records = []*etl.Record{flatten(v)}
		}
	default:
		err = errors.New("JSON must be an array or object")
	}
	if err != nil {
		return etl.ConnectionError("parse json", err)
	}
	r.loaded = true
	slog.Info("json records loaded", "path", r.filePath, "count", len(r.records))
	return nil
}

func extractPath(obj *etl.Record, path []string) any {
	var cur any = obj
	for _, part := range path {
		rec, ok := cur.(*etl.Record)
		if !ok {
			return nil
		}
		cur = rec.Value(part)
	}
	return cur
}

func recordsOf(items []any) ([]*etl.Record, error) {
	out := make([]*etl.Record, 0, len(items))
	for i, item := range items {
		rec, ok := item.(*etl.Record)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not an object", i, plainValue(item))
		}
		out = append(out, flatten(rec))
	}
	return out, nil
}

// flatten converts nested ordered objects inside rec into plain maps.
func flatten(rec *etl.Record) *etl.Record {
	out := etl.NewRecord()
	rec.Each(func(name string, v any) { out.Set(name, plainValue(v)) })
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case *etl.Record:
		m := make(map[string]any, t.Len())
		t.Each(func(name string, v any) { m[name] = plainValue(v) })
		return m
	case []any:
		for i := range t {
			t[i] = plainValue(t[i])
		}
		return t
	}
	return v
}

// decodeOrdered reads one JSON value, keeping object key order. Objects
// become records; integral numbers become int64, the rest float64.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := etl.NewRecord()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		case '[':
			items := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return t, nil
	}
}

func (r *jsonReader) Schema(context.Context) (*etl.Schema, error) {
	if r.schema == nil {
		if len(r.records) == 0 {
			return &etl.Schema{}, nil
		}
		r.schema = etl.SchemaFromRecord(r.records[0])
	}
	return r.schema, nil
}

func (r *jsonReader) Read(context.Context) (etl.Iterator, error) {
	if !r.loaded {
		return nil, etl.ConnectionError("read json", errors.New("reader is not open"))
	}
	return etl.SliceIterator(r.records), nil
}

func (r *jsonReader) EstimateCount(context.Context) int64 {
	if !r.loaded {
		return -1
	}
	return int64(len(r.records))
}

func (r *jsonReader) Close() error {
	r.records = nil
	return nil
}

// ── Writer ──

type jsonWriter struct {
	filePath string
	pretty   bool
	buffer   []*etl.Record
	written  int64
}

func (w *jsonWriter) SetSchema(*etl.Schema) {}

func (w *jsonWriter) Open(context.Context) error {
	w.buffer = w.buffer[:0]
	return nil
}

func (w *jsonWriter) Write(_ context.Context, rec *etl.Record) error {
	w.buffer = append(w.buffer, rec)
	return nil
}

func (w *jsonWriter) WriteAll(ctx context.Context, it etl.Iterator) error {
	return etl.WriteEach(ctx, w, it)
}

// Commit replaces the file with the buffered records via a temp file in the
// same directory.
func (w *jsonWriter) Commit(context.Context) error {
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return etl.ConnectionError("write json", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.filePath)+".*.tmp")
	if err != nil {
		return etl.ConnectionError("write json", err)
	}
	defer os.Remove(tmp.Name())

	if err := w.encode(tmp); err != nil {
		tmp.Close()
		return etl.ConnectionError("write json", err)
	}
	if err := tmp.Close(); err != nil {
		return etl.ConnectionError("write json", err)
	}
	if err := os.Rename(tmp.Name(), w.filePath); err != nil {
		return etl.ConnectionError("write json", err)
	}
	w.written = int64(len(w.buffer))
	slog.Info("json records written", "path", w.filePath, "count", w.written)
	return nil
}

func (w *jsonWriter) encode(out io.Writer) error {
	records := w.buffer
	if records == nil {
		records = []*etl.Record{}
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(records)
}

func (w *jsonWriter) Rollback(context.Context) error {
	w.buffer = nil
	return nil
}

func (w *jsonWriter) Close() error {
	w.buffer = nil
	return nil
}

func (w *jsonWriter) WrittenCount() int64 { return w.written }
