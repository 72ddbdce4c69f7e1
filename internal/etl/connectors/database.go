package connectors

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/dbclient"
	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ── Database Connector ─────────────────────────────────────
// Relational databases through database/sql. Reads stream from an open
// cursor; writes run in one explicit transaction with batched multi-row
// INSERTs.

// maxBindParams caps the placeholders of one INSERT statement.
const maxBindParams = 2000

// Database is the relational database connector (type "jdbc").
type Database struct{}

func (Database) Type() string        { return "jdbc" }
func (Database) DisplayName() string { return "Relational Database" }
func (Database) Description() string {
	return "Read and write MySQL, PostgreSQL, SQLite and SQL Server tables"
}
func (Database) SupportsRead() bool  { return true }
func (Database) SupportsWrite() bool { return true }

func (Database) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "databaseType", Label: "Database Type", Type: etl.FieldSelect, Required: true, DefaultValue: "mysql",
			Options: []string{"mysql", "postgresql", "sqlite", "sqlserver"}},
		{Name: "host", Label: "Host", Type: etl.FieldString, DefaultValue: "localhost"},
		{Name: "port", Label: "Port", Type: etl.FieldInteger,
			Description: "Defaults to the standard port of the database type",
			Validation:  &etl.FieldValidation{Min: etl.FloatPtr(1), Max: etl.FloatPtr(65535)}},
		{Name: "database", Label: "Database", Type: etl.FieldString, Required: true,
			Description: "Database name, or the file path for SQLite"},
		{Name: "username", Label: "Username", Type: etl.FieldString},
		{Name: "password", Label: "Password", Type: etl.FieldPassword},
		{Name: "sslMode", Label: "SSL Mode", Type: etl.FieldSelect,
			Options: []string{"disable", "require", "verify-ca", "verify-full"}},
		{Name: "table", Label: "Table", Type: etl.FieldTableSelector,
			Description: "Table to read from or write to"},
		{Name: "query", Label: "SQL Query", Type: etl.FieldSQL,
			Description: "Custom query used when reading"},
		{Name: "writeMode", Label: "Write Mode", Type: etl.FieldSelect, DefaultValue: writeModeAppend,
			Options: []string{writeModeAppend, writeModeOverwrite, writeModeUpsert}},
		{Name: "upsertKeys", Label: "Upsert Keys", Type: etl.FieldMultiSelect,
			Description: "Conflict columns for upsert"},
		{Name: "batchSize", Label: "Batch Size", Type: etl.FieldInteger, DefaultValue: 1000,
			Validation: &etl.FieldValidation{Min: etl.FloatPtr(1)}},
	}}
}

type dbConfig struct {
	conn       *domain.DatabaseConnection
	password   string
	table      string
	query      string
	writeMode  string
	upsertKeys []string
	batchSize  int
}

func parseDBConfig(cfg etl.Config) dbConfig {
	conn := &domain.DatabaseConnection{
		Driver:   domain.DatabaseDriver(strings.ToLower(cfg.String("databaseType", "mysql"))),
		Host:     cfg.String("host", "localhost"),
		Port:     cfg.Int("port", 0),
		Database: cfg.String("database", ""),
		Username: cfg.String("username", ""),
		SSLMode:  cfg.String("sslMode", ""),
	}
	if conn.Driver == "postgres" {
		conn.Driver = domain.DatabaseDriverPostgres
	}
	batch := cfg.Int("batchSize", 1000)
	if batch <= 0 {
		batch = 1000
	}
	return dbConfig{
		conn:       conn,
		password:   cfg.String("password", ""),
		table:      strings.TrimSpace(cfg.String("table", "")),
		query:      strings.TrimSpace(cfg.String("query", "")),
		writeMode:  strings.ToLower(cfg.String("writeMode", writeModeAppend)),
		upsertKeys: cfg.StringSlice("upsertKeys"),
		batchSize:  batch,
	}
}

func (d Database) Validate(cfg etl.Config) error {
	if err := d.ConfigSchema().Validate(d.Type(), cfg); err != nil {
		return err
	}
	c := parseDBConfig(cfg)
	dialect, err := dbclient.DialectFor(c.conn.Driver)
	if err != nil {
		return etl.ConfigErrorf(d.Type(), "%v", err)
	}
	if c.conn.Driver != domain.DatabaseDriverSQLite {
		for _, f := range []string{"host", "username", "password"} {
			if !cfg.Has(f) {
				return etl.ConfigErrorf(d.Type(), "%s is required", f)
			}
		}
	}
	if c.table == "" && c.query == "" {
		return etl.ConfigErrorf(d.Type(), "either table or query must be specified")
	}
	if c.writeMode != writeModeUpsert {
		return nil
	}
	if _, err := dialect.UpsertClause(c.upsertKeys, c.upsertKeys); err != nil {
		if errors.Is(err, dbclient.ErrUpsertUnsupported) {
			return etl.ConfigErrorf(d.Type(), "%s: %v", c.conn.Driver, err)
		}
		return etl.ConfigErrorf(d.Type(), "upsertKeys are required for upsert")
	}
	return nil
}

func (d Database) TestConnection(ctx context.Context, cfg etl.Config) error {
	c := parseDBConfig(cfg)
	db, _, err := dbclient.OpenSQL(ctx, c.conn, c.password)
	if err != nil {
		return etl.ConnectionError(d.Type()+" test", err)
	}
	return db.Close()
}

func (Database) CreateReader(cfg etl.Config) (etl.Reader, error) {
	return &dbReader{cfg: parseDBConfig(cfg)}, nil
}

func (Database) CreateWriter(cfg etl.Config) (etl.Writer, error) {
	return &dbWriter{cfg: parseDBConfig(cfg)}, nil
}

// mapColumnType maps a driver column type name to a DataType.
func mapColumnType(dbType string) etl.DataType {
	t := strings.ToUpper(dbType)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimPrefix(strings.TrimSpace(t), "UNSIGNED ")
	switch t {
	case "VARCHAR", "CHAR", "TEXT", "NVARCHAR", "NCHAR", "NTEXT", "LONGTEXT", "MEDIUMTEXT",
		"TINYTEXT", "BPCHAR", "CHARACTER VARYING", "UUID", "UNIQUEIDENTIFIER", "ENUM":
		return etl.TypeString
	case "INT", "INTEGER", "SMALLINT", "TINYINT", "MEDIUMINT", "INT2", "INT4", "SERIAL":
		return etl.TypeInteger
	case "BIGINT", "INT8", "BIGSERIAL":
		return etl.TypeLong
	case "FLOAT", "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT4", "FLOAT8":
		return etl.TypeDouble
	case "DECIMAL", "NUMERIC", "MONEY":
		return etl.TypeDecimal
	case "BOOL", "BOOLEAN", "BIT":
		return etl.TypeBoolean
	case "DATE":
		return etl.TypeDate
	case "TIME", "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "DATETIME2", "DATETIMEOFFSET", "SMALLDATETIME":
		return etl.TypeTimestamp
	case "BLOB", "BINARY", "VARBINARY", "BYTEA", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB", "IMAGE":
		return etl.TypeBinary
	case "JSON", "JSONB":
		return etl.TypeJSON
	}
	return etl.TypeString
}

// normalizeValue turns driver values into plain Go values. Text-protocol
// drivers hand back []byte for most types.
func normalizeValue(v any, typ etl.DataType) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	switch typ {
	case etl.TypeBinary:
		return append([]byte(nil), b...)
	case etl.TypeInteger, etl.TypeLong:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case etl.TypeDouble:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case etl.TypeBoolean:
		if bv, err := strconv.ParseBool(s); err == nil {
			return bv
		}
	}
	return s
}

// ── Reader ──

type dbReader struct {
	cfg     dbConfig
	db      *sql.DB
	dialect dbclient.Dialect
	schema  *etl.Schema
	rows    *sql.Rows
}

func (r *dbReader) Open(ctx context.Context) error {
	db, dialect, err := dbclient.OpenSQL(ctx, r.cfg.conn, r.cfg.password)
	if err != nil {
		return etl.ConnectionError("open database", err)
	}
	r.db, r.dialect = db, dialect
	return nil
}

func (r *dbReader) query() (string, error) {
	if r.cfg.query != "" {
		return r.cfg.query, nil
	}
	if r.cfg.table == "" {
		return "", etl.ConfigErrorf("jdbc", "either table or query must be specified")
	}
	return dbclient.SelectAll(r.dialect, r.cfg.table), nil
}

func (r *dbReader) Schema(ctx context.Context) (*etl.Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	if r.db == nil {
		return nil, etl.ConnectionError("fetch schema", errors.New("reader is not open"))
	}
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.LimitOne(q))
	if err != nil {
		return nil, etl.ConnectionError("fetch schema", err)
	}
	defer rows.Close()
	schema, err := schemaFromRows(rows)
	if err != nil {
		return nil, err
	}
	r.schema = schema
	return schema, nil
}

func schemaFromRows(rows *sql.Rows) (*etl.Schema, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, etl.ConnectionError("fetch schema", err)
	}
	s := &etl.Schema{Fields: make([]etl.Field, len(types))}
	for i, ct := range types {
		nullable, ok := ct.Nullable()
		s.Fields[i] = etl.Field{
			Name:     ct.Name(),
			Type:     mapColumnType(ct.DatabaseTypeName()),
			Nullable: nullable || !ok,
		}
	}
	return s, nil
}

func (r *dbReader) Read(ctx context.Context) (etl.Iterator, error) {
	schema, err := r.Schema(ctx)
	if err != nil {
		return nil, err
	}
	q, err := r.query()
	if err != nil {
		return nil, err
	}
	slog.Info("executing query", "connector", "jdbc", "sql", q)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, etl.ConnectionError("execute query", err)
	}
	r.rows = rows

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, etl.ConnectionError("execute query", err)
	}
	types := make([]etl.DataType, len(cols))
	for i, c := range cols {
		if f, ok := schema.Field(c); ok {
			types[i] = f.Type
		}
	}

	return etl.FuncIterator(func(context.Context) (*etl.Record, bool, error) {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, false, etl.ConnectionError("read rows", err)
			}
			return nil, false, nil
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, etl.ConnectionError("read rows", err)
		}
		rec := etl.NewRecord()
		for i, c := range cols {
			rec.Set(c, normalizeValue(values[i], types[i]))
		}
		return rec, true, nil
	}, rows.Close), nil
}

func (r *dbReader) EstimateCount(ctx context.Context) int64 {
	if r.db == nil {
		return -1
	}
	q, err := r.query()
	if err != nil {
		return -1
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, dbclient.CountSQL(q)).Scan(&n); err != nil {
		slog.Warn("failed to estimate count", "connector", "jdbc", "error", err)
		return -1
	}
	return n
}

func (r *dbReader) Close() error {
	var errs []error
	if r.rows != nil {
		errs = append(errs, r.rows.Close())
		r.rows = nil
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

// ── Writer ──

type dbWriter struct {
	cfg     dbConfig
	schema  *etl.Schema
	db      *sql.DB
	dialect dbclient.Dialect
	tx      *sql.Tx
	columns []string
	suffix  string
	batch   [][]any
	written int64
}

func (w *dbWriter) SetSchema(s *etl.Schema) { w.schema = s }

func (w *dbWriter) Open(ctx context.Context) error {
	if w.cfg.table == "" {
		return etl.ConfigErrorf("jdbc", "table is required for writing")
	}
	db, dialect, err := dbclient.OpenSQL(ctx, w.cfg.conn, w.cfg.password)
	if err != nil {
		return etl.ConnectionError("open database", err)
	}
	w.db, w.dialect = db, dialect

	if err := w.begin(ctx); err != nil {
		return err
	}
	if w.cfg.writeMode == writeModeOverwrite {
		if _, err := w.tx.ExecContext(ctx, dialect.Truncate(w.cfg.table)); err != nil {
			return etl.ConnectionError("truncate table", err)
		}
		slog.Info("table truncated", "connector", "jdbc", "table", w.cfg.table)
	}
	if w.schema.Len() > 0 {
		return w.prepare(w.schema.FieldNames())
	}
	return nil
}

func (w *dbWriter) begin(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return etl.ConnectionError("begin transaction", err)
	}
	w.tx = tx
	return nil
}

// prepare fixes the column list and upsert suffix of every INSERT.
func (w *dbWriter) prepare(columns []string) error {
	w.columns = columns
	if w.cfg.writeMode != writeModeUpsert {
		return nil
	}
	suffix, err := w.dialect.UpsertClause(columns, w.cfg.upsertKeys)
	if err != nil {
		return etl.ConfigErrorf("jdbc", "upsert: %v", err)
	}
	w.suffix = suffix
	return nil
}

func (w *dbWriter) Write(ctx context.Context, rec *etl.Record) error {
	if w.db == nil {
		return etl.ConnectionError("write", errors.New("writer is not open"))
	}
	if w.columns == nil {
		if err := w.prepare(rec.Fields()); err != nil {
			return err
		}
	}
	row := make([]any, len(w.columns))
	for i, c := range w.columns {
		row[i] = bindValue(rec.Value(c))
	}
	w.batch = append(w.batch, row)
	if len(w.batch) >= w.cfg.batchSize {
		return w.flush(ctx)
	}
	return nil
}

// bindValue converts nested values into something every driver accepts.
func bindValue(v any) any {
	switch t := v.(type) {
	case map[string]any, []any, *etl.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return v
}

func (w *dbWriter) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	if w.tx == nil {
		if err := w.begin(ctx); err != nil {
			return err
		}
	}
	perStmt := max(1, maxBindParams/max(1, len(w.columns)))
	for start := 0; start < len(w.batch); start += perStmt {
		end := min(start+perStmt, len(w.batch))
		chunk := w.batch[start:end]
		args := make([]any, 0, len(chunk)*len(w.columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		stmt := dbclient.InsertSQL(w.dialect, w.cfg.table, w.columns, len(chunk), w.suffix)
		if _, err := w.tx.ExecContext(ctx, stmt, args...); err != nil {
			return etl.ConnectionError("execute batch", err)
		}
		w.written += int64(len(chunk))
	}
	w.batch = w.batch[:0]
	return nil
}

func (w *dbWriter) WriteAll(ctx context.Context, it etl.Iterator) error {
	if err := etl.WriteEach(ctx, w, it); err != nil {
		return err
	}
	return w.flush(ctx)
}

func (w *dbWriter) Commit(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	if w.tx == nil {
		return nil
	}
	if err := w.tx.Commit(); err != nil {
		w.tx = nil
		return etl.ConnectionError("commit", err)
	}
	w.tx = nil
	slog.Info("records committed", "connector", "jdbc", "table", w.cfg.table, "count", w.written)
	return nil
}

func (w *dbWriter) Rollback(context.Context) error {
	w.batch = nil
	if w.tx == nil {
		return nil
	}
	err := w.tx.Rollback()
	w.tx = nil
	w.written = 0
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return etl.ConnectionError("rollback", err)
	}
	return nil
}

func (w *dbWriter) Close() error {
	var errs []error
	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		w.tx = nil
	}
	if w.db != nil {
		errs = append(errs, w.db.Close())
		w.db = nil
	}
	return errors.Join(errs...)
}

func (w *dbWriter) WrittenCount() int64 { return w.written }
