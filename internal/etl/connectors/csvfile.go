package connectors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ── CSV File Connector ─────────────────────────────────────
// Reads and writes delimited text files. Every value is a string; the
// header row (or col_1..col_n) names the fields.

const (
	writeModeAppend    = "append"
	writeModeOverwrite = "overwrite"
	writeModeUpsert    = "upsert"
)

// CSV is the delimited-text file connector.
type CSV struct{}

func (CSV) Type() string        { return "csv" }
func (CSV) DisplayName() string { return "CSV File" }
func (CSV) Description() string { return "Read and write CSV files" }
func (CSV) SupportsRead() bool  { return true }
func (CSV) SupportsWrite() bool { return true }

func (CSV) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "filePath", Label: "File Path", Type: etl.FieldFilePath, Required: true,
			Description: "Path of the CSV file"},
		{Name: "delimiter", Label: "Delimiter", Type: etl.FieldString, DefaultValue: ",",
			Validation: &etl.FieldValidation{MinLength: etl.IntPtr(1), MaxLength: etl.IntPtr(2)}},
		{Name: "hasHeader", Label: "Has Header", Type: etl.FieldBoolean, DefaultValue: true,
			Description: "Whether the first row contains column names"},
		{Name: "encoding", Label: "Encoding", Type: etl.FieldSelect, DefaultValue: "UTF-8",
			Options: []string{"UTF-8", "GBK", "ISO-8859-1"}},
		{Name: "writeMode", Label: "Write Mode", Type: etl.FieldSelect, DefaultValue: writeModeOverwrite,
			Options: []string{writeModeOverwrite, writeModeAppend}},
	}}
}

func (c CSV) Validate(cfg etl.Config) error {
	if err := c.ConfigSchema().Validate(c.Type(), cfg); err != nil {
		return err
	}
	if _, err := textEncoding(cfg.String("encoding", "UTF-8")); err != nil {
		return etl.ConfigErrorf(c.Type(), "%v", err)
	}
	return nil
}

func (c CSV) TestConnection(_ context.Context, cfg etl.Config) error {
	return checkFilePath(c.Type(), cfg.String("filePath", ""))
}

func (CSV) CreateReader(cfg etl.Config) (etl.Reader, error) {
	return &csvReader{cfg: parseCSVConfig(cfg)}, nil
}

func (CSV) CreateWriter(cfg etl.Config) (etl.Writer, error) {
	return &csvWriter{cfg: parseCSVConfig(cfg)}, nil
}

type csvConfig struct {
	filePath  string
	delimiter rune
	hasHeader bool
	encoding  string
	writeMode string
}

func parseCSVConfig(cfg etl.Config) csvConfig {
	return csvConfig{
		filePath:  cfg.String("filePath", ""),
		delimiter: cfg.Rune("delimiter", ','),
		hasHeader: cfg.Bool("hasHeader", true),
		encoding:  cfg.String("encoding", "UTF-8"),
		writeMode: strings.ToLower(cfg.String("writeMode", writeModeOverwrite)),
	}
}

// textEncoding resolves a charset name. UTF-8 strips a leading BOM on read.
func textEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.UTF8BOM, nil
	case "GBK":
		return simplifiedchinese.GBK, nil
	case "ISO-8859-1", "LATIN1":
		return charmap.ISO8859_1, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// checkFilePath succeeds when the file or its parent directory exists.
func checkFilePath(connector, path string) error {
	if path == "" {
		return etl.ConfigErrorf(connector, "filePath is required")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return etl.ConnectionError(connector+" test", fmt.Errorf("neither %s nor its directory exists", path))
	}
	return nil
}

// ── Reader ──

type csvReader struct {
	cfg     csvConfig
	file    *os.File
	parser  *csv.Reader
	header  []string
	pending []string // first data row when there is no header
	schema  *etl.Schema
}

func (r *csvReader) Open(context.Context) error {
	enc, err := textEncoding(r.cfg.encoding)
	if err != nil {
		return etl.ConfigErrorf("csv", "%v", err)
	}
	f, err := os.Open(r.cfg.filePath)
	if err != nil {
		return etl.ConnectionError("open csv", err)
	}
	r.file = f

	r.parser = csv.NewReader(enc.NewDecoder().Reader(f))
	r.parser.Comma = r.cfg.delimiter
	r.parser.LazyQuotes = true
	r.parser.TrimLeadingSpace = true
	r.parser.FieldsPerRecord = -1

	first, err := r.parser.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return etl.ConnectionError("parse csv", err)
	}
	if r.cfg.hasHeader {
		r.header = trimAll(first)
		return nil
	}
	r.header = make([]string, len(first))
	for i := range first {
		r.header[i] = fmt.Sprintf("col_%d", i+1)
	}
	r.pending = first
	return nil
}

func (r *csvReader) Schema(context.Context) (*etl.Schema, error) {
	if r.schema == nil {
		r.schema = &etl.Schema{Fields: make([]etl.Field, len(r.header))}
		for i, h := range r.header {
			r.schema.Fields[i] = etl.Field{Name: h, Type: etl.TypeString, Nullable: true}
		}
	}
	return r.schema, nil
}

func (r *csvReader) Read(context.Context) (etl.Iterator, error) {
	if r.parser == nil {
		return nil, etl.ConnectionError("read csv", errors.New("reader is not open"))
	}
	if len(r.header) == 0 {
		return etl.EmptyIterator(), nil
	}
	return etl.FuncIterator(func(context.Context) (*etl.Record, bool, error) {
		row := r.pending
		r.pending = nil
		if row == nil {
			var err error
			row, err = r.parser.Read()
			if errors.Is(err, io.EOF) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, etl.ConnectionError("parse csv", err)
			}
		}
		rec := etl.NewRecord()
		for i, h := range r.header {
			if i < len(row) {
				rec.Set(h, strings.TrimSpace(row[i]))
			} else {
				rec.Set(h, nil)
			}
		}
		return rec, true, nil
	}, nil), nil
}

func (r *csvReader) EstimateCount(context.Context) int64 { return -1 }

func (r *csvReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// ── Writer ──

type csvWriter struct {
	cfg        csvConfig
	schema     *etl.Schema
	file       *os.File
	encoded    io.WriteCloser
	printer    *csv.Writer
	header     []string
	needHeader bool
	written    int64
}

func (w *csvWriter) SetSchema(s *etl.Schema) { w.schema = s }

func (w *csvWriter) Open(context.Context) error {
	enc, err := textEncoding(w.cfg.encoding)
	if err != nil {
		return etl.ConfigErrorf("csv", "%v", err)
	}
	if dir := filepath.Dir(w.cfg.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return etl.ConnectionError("open csv", err)
		}
	}

	appendMode := w.cfg.writeMode == writeModeAppend
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	w.needHeader = true
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if info, err := os.Stat(w.cfg.filePath); err == nil && info.Size() > 0 {
			w.needHeader = false
		}
	}

	f, err := os.OpenFile(w.cfg.filePath, flags, 0o644)
	if err != nil {
		return etl.ConnectionError("open csv", err)
	}
	w.file = f
	if enc == unicode.UTF8BOM {
		enc = unicode.UTF8
	}
	w.encoded = transform.NewWriter(f, enc.NewEncoder())
	w.printer = csv.NewWriter(w.encoded)
	w.printer.Comma = w.cfg.delimiter

	if w.schema.Len() > 0 {
		w.header = w.schema.FieldNames()
	}
	slog.Debug("csv writer opened", "path", w.cfg.filePath, "mode", w.cfg.writeMode)
	return nil
}

func (w *csvWriter) writeHeader() error {
	w.needHeader = false
	if len(w.header) == 0 {
		return nil
	}
	if err := w.printer.Write(w.header); err != nil {
		return etl.ConnectionError("write csv header", err)
	}
	return nil
}

func (w *csvWriter) Write(_ context.Context, rec *etl.Record) error {
	if w.printer == nil {
		return etl.ConnectionError("write csv", errors.New("writer is not open"))
	}
	if w.header == nil {
		w.header = rec.Fields()
	}
	if w.needHeader {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	row := make([]string, len(w.header))
	for i, h := range w.header {
		row[i] = etl.Stringify(rec.Value(h))
	}
	if err := w.printer.Write(row); err != nil {
		return etl.ConnectionError("write csv", err)
	}
	w.written++
	return nil
}

func (w *csvWriter) WriteAll(ctx context.Context, it etl.Iterator) error {
	return etl.WriteEach(ctx, w, it)
}

func (w *csvWriter) Commit(context.Context) error {
	if w.printer == nil {
		return nil
	}
	if w.needHeader {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	w.printer.Flush()
	if err := w.printer.Error(); err != nil {
		return etl.ConnectionError("flush csv", err)
	}
	slog.Info("csv records written", "path", w.cfg.filePath, "count", w.written)
	return nil
}

func (w *csvWriter) Rollback(context.Context) error {
	slog.Warn("csv writer does not support rollback", "path", w.cfg.filePath)
	return nil
}

func (w *csvWriter) Close() error {
	if w.file == nil {
		return nil
	}
	w.printer.Flush()
	err := errors.Join(w.printer.Error(), w.encoded.Close(), w.file.Close())
	w.file = nil
	w.printer = nil
	return err
}

func (w *csvWriter) WrittenCount() int64 { return w.written }
