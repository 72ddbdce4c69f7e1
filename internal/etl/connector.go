package etl

import (
	"context"
	"fmt"
)

// ── Connector ──────────────────────────────────────────────
// A Connector describes one external medium (file format, database, ...)
// and creates session-scoped readers and writers for it.
// Implementations live in etl/connectors/, one file per connector type.

// Connector is the interface every source/sink plugin implements.
type Connector interface {
	// Type is the registry key, e.g. "csv".
	Type() string
	DisplayName() string
	Description() string

	// ConfigSchema declares the configuration form.
	ConfigSchema() ConfigSchema

	// Validate fails with a ConfigError when cfg is missing or malformed.
	Validate(cfg Config) error

	// TestConnection probes the medium. Callers should go through
	// CheckConnection, which never fails outward.
	TestConnection(ctx context.Context, cfg Config) error

	// CreateReader and CreateWriter do no I/O; that starts at Open.
	CreateReader(cfg Config) (Reader, error)
	CreateWriter(cfg Config) (Writer, error)

	SupportsRead() bool
	SupportsWrite() bool
}

// Reader is a single read session.
type Reader interface {
	// Open acquires the underlying resource.
	Open(ctx context.Context) error
	// Schema is inferred lazily and memoised.
	Schema(ctx context.Context) (*Schema, error)
	// Read returns the record sequence. It can be consumed once.
	Read(ctx context.Context) (Iterator, error)
	// EstimateCount is a best-effort row count, -1 when unknown.
	EstimateCount(ctx context.Context) int64
	// Close is idempotent and releases every resource.
	Close() error
}

// Writer is a single write session. SetSchema must be called before Open.
type Writer interface {
	SetSchema(schema *Schema)
	Open(ctx context.Context) error
	Write(ctx context.Context, rec *Record) error
	WriteAll(ctx context.Context, it Iterator) error
	// Commit finalises everything written so far. Calling it with nothing
	// pending is a no-op.
	Commit(ctx context.Context) error
	// Rollback discards uncommitted writes where the medium allows it.
	Rollback(ctx context.Context) error
	// Close is always safe, including after a failed Open or Write.
	Close() error
	// WrittenCount reports rows written so far.
	WrittenCount() int64
}

// WriteEach drains it into w one record at a time. Writers without a bulk
// path use it for WriteAll.
func WriteEach(ctx context.Context, w Writer, it Iterator) error {
	defer it.Close()
	for it.Next(ctx) {
		if err := w.Write(ctx, it.Record()); err != nil {
			return err
		}
	}
	return it.Err()
}

// ── Connection checks ──────────────────────────────────────

// ConnectionStatus is the non-fatal outcome of a connection test.
type ConnectionStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckConnection validates cfg and tests the connection, turning every
// failure (including a panicking plugin) into an unsuccessful status.
func CheckConnection(ctx context.Context, c Connector, cfg Config) (status ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = ConnectionStatus{Message: fmt.Sprintf("connection test panicked: %v", r)}
		}
	}()
	cfg = c.ConfigSchema().ApplyDefaults(cfg)
	if err := c.Validate(cfg); err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	if err := c.TestConnection(ctx, cfg); err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	return ConnectionStatus{Success: true, Message: "connection successful"}
}

// ── Descriptors ────────────────────────────────────────────

// ConnectorInfo is the introspectable description of a connector.
type ConnectorInfo struct {
	Type          string       `json:"type"`
	DisplayName   string       `json:"displayName"`
	Description   string       `json:"description"`
	ConfigSchema  ConfigSchema `json:"configSchema"`
	SupportsRead  bool         `json:"supportsRead"`
	SupportsWrite bool         `json:"supportsWrite"`
}

// DescribeConnector returns the descriptor of c.
func DescribeConnector(c Connector) ConnectorInfo {
	return ConnectorInfo{
		Type:          c.Type(),
		DisplayName:   c.DisplayName(),
		Description:   c.Description(),
		ConfigSchema:  c.ConfigSchema(),
		SupportsRead:  c.SupportsRead(),
		SupportsWrite: c.SupportsWrite(),
	}
}
