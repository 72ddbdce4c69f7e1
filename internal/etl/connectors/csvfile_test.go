package connectors_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
	"github.com/frankawp/data-pipeline-builder/internal/etl/connectors"
)

// writeRecords drives a writer through its full lifecycle.
func writeRecords(t *testing.T, c etl.Connector, cfg etl.Config, schema *etl.Schema, recs []*etl.Record) etl.Writer {
	t.Helper()
	ctx := t.Context()
	cfg = c.ConfigSchema().ApplyDefaults(cfg)
	if err := c.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	w, err := c.CreateWriter(cfg)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	w.SetSchema(schema)
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open writer: %v", err)
	}
	defer w.Close()
	if err := w.WriteAll(ctx, etl.SliceIterator(recs)); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return w
}

// readRecords opens a reader and drains it.
func readRecords(t *testing.T, c etl.Connector, cfg etl.Config) (*etl.Schema, []*etl.Record) {
	t.Helper()
	ctx := t.Context()
	cfg = c.ConfigSchema().ApplyDefaults(cfg)
	r, err := c.CreateReader(cfg)
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	if err := r.Open(ctx); err != nil {
		t.Fatalf("Open reader: %v", err)
	}
	defer r.Close()
	schema, err := r.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	it, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	recs, err := etl.Drain(ctx, it)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return schema, recs
}

func people(n int) []*etl.Record {
	out := make([]*etl.Record, n)
	for i := range out {
		out[i] = etl.RecordFromPairs("id", fmt.Sprint(i+1), "name", fmt.Sprintf("person %d", i+1), "amount", fmt.Sprint(i*10))
	}
	return out
}

func peopleSchema() *etl.Schema {
	return &etl.Schema{Fields: []etl.Field{
		{Name: "id", Type: etl.TypeString},
		{Name: "name", Type: etl.TypeString},
		{Name: "amount", Type: etl.TypeString},
	}}
}

// ─────────────────────────────────────────────────────────────
// CSV
// ─────────────────────────────────────────────────────────────

func TestCSV_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 1000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.csv")
			cfg := etl.Config{"filePath": path}

			w := writeRecords(t, connectors.CSV{}, cfg, peopleSchema(), people(n))
			if w.WrittenCount() != int64(n) {
				t.Errorf("WrittenCount = %d, want %d", w.WrittenCount(), n)
			}

			schema, got := readRecords(t, connectors.CSV{}, cfg)
			if names := strings.Join(schema.FieldNames(), ","); names != "id,name,amount" {
				t.Errorf("schema fields = %s", names)
			}
			if len(got) != n {
				t.Fatalf("read %d records, want %d", len(got), n)
			}
			for i, want := range people(n) {
				for _, f := range []string{"id", "name", "amount"} {
					if got[i].Value(f) != want.Value(f) {
						t.Fatalf("record %d field %s = %v, want %v", i, f, got[i].Value(f), want.Value(f))
					}
				}
			}
		})
	}
}

func TestCSV_ReadWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(path, []byte("a; b\n c;d;e\nf\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	schema, got := readRecords(t, connectors.CSV{}, etl.Config{
		"filePath": path, "hasHeader": false, "delimiter": ";",
	})
	if names := strings.Join(schema.FieldNames(), ","); names != "col_1,col_2" {
		t.Errorf("schema fields = %s", names)
	}
	if len(got) != 3 {
		t.Fatalf("read %d records, want 3", len(got))
	}
	if got[0].Value("col_2") != "b" {
		t.Errorf("values should be trimmed, got %q", got[0].Value("col_2"))
	}
	if got[1].Has("col_3") {
		t.Error("extra columns beyond the header should be dropped")
	}
	if v, ok := got[2].Get("col_2"); !ok || v != nil {
		t.Errorf("missing column = %v (present %v), want nil", v, ok)
	}
}

func TestCSV_AppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	cfg := etl.Config{"filePath": path, "writeMode": "append"}

	writeRecords(t, connectors.CSV{}, cfg, peopleSchema(), people(2))
	writeRecords(t, connectors.CSV{}, cfg, peopleSchema(), people(3))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "id,name,amount"); n != 1 {
		t.Errorf("header appears %d times, want 1", n)
	}
	_, got := readRecords(t, connectors.CSV{}, cfg)
	if len(got) != 5 {
		t.Errorf("read %d records, want 5", len(got))
	}
}

func TestCSV_GBKEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbk.csv")
	cfg := etl.Config{"filePath": path, "encoding": "GBK"}
	rec := etl.RecordFromPairs("city", "北京")

	writeRecords(t, connectors.CSV{}, cfg, nil, []*etl.Record{rec})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "北京") {
		t.Error("file should not be UTF-8 encoded")
	}
	_, got := readRecords(t, connectors.CSV{}, cfg)
	if len(got) != 1 || got[0].Value("city") != "北京" {
		t.Errorf("decoded records = %v", got)
	}
}

func TestCSV_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  etl.Config
		want string
	}{
		{"missing path", etl.Config{}, "filePath is required"},
		{"bad encoding", etl.Config{"filePath": "x.csv", "encoding": "EBCDIC"}, "EBCDIC"},
		{"bad write mode", etl.Config{"filePath": "x.csv", "writeMode": "merge"}, "writeMode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := connectors.CSV{}.Validate(tt.cfg)
			if !errors.Is(err, etl.ErrConfig) {
				t.Fatalf("err = %v, want a config error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestCSV_TestConnection(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if err := (connectors.CSV{}).TestConnection(ctx, etl.Config{"filePath": filepath.Join(dir, "new.csv")}); err != nil {
		t.Errorf("new file in existing dir: %v", err)
	}
	err := connectors.CSV{}.TestConnection(ctx, etl.Config{"filePath": filepath.Join(dir, "missing", "x.csv")})
	if !errors.Is(err, etl.ErrConnection) {
		t.Errorf("err = %v, want a connection error", err)
	}
}
