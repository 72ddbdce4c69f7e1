package connectors

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/dbclient"
	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ── MongoDB Connector ──────────────────────────────────────
// Documents map to records field by field. Nested documents become maps,
// ObjectIDs their hex string.

// Mongo is the MongoDB collection connector.
type Mongo struct{}

func (Mongo) Type() string        { return "mongodb" }
func (Mongo) DisplayName() string { return "MongoDB" }
func (Mongo) Description() string { return "Read and write MongoDB collections" }
func (Mongo) SupportsRead() bool  { return true }
func (Mongo) SupportsWrite() bool { return true }

func (Mongo) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "uri", Label: "Connection URI", Type: etl.FieldString,
			Description: "mongodb:// or mongodb+srv:// URI; overrides host and port"},
		{Name: "host", Label: "Host", Type: etl.FieldString, DefaultValue: "localhost"},
		{Name: "port", Label: "Port", Type: etl.FieldInteger, DefaultValue: 27017,
			Validation: &etl.FieldValidation{Min: etl.FloatPtr(1), Max: etl.FloatPtr(65535)}},
		{Name: "database", Label: "Database", Type: etl.FieldString, Required: true},
		{Name: "username", Label: "Username", Type: etl.FieldString},
		{Name: "password", Label: "Password", Type: etl.FieldPassword},
		{Name: "collection", Label: "Collection", Type: etl.FieldTableSelector, Required: true},
		{Name: "filter", Label: "Filter", Type: etl.FieldJSON,
			Description: `Extended JSON query filter, e.g. {"status": "active"}`},
		{Name: "writeMode", Label: "Write Mode", Type: etl.FieldSelect, DefaultValue: writeModeAppend,
			Options: []string{writeModeAppend, writeModeOverwrite}},
		{Name: "batchSize", Label: "Batch Size", Type: etl.FieldInteger, DefaultValue: 1000,
			Validation: &etl.FieldValidation{Min: etl.FloatPtr(1)}},
	}}
}

type mongoConfig struct {
	conn       *domain.DatabaseConnection
	password   string
	collection string
	filter     string
	writeMode  string
	batchSize  int
}

func parseMongoConfig(cfg etl.Config) mongoConfig {
	host := cfg.String("uri", "")
	if host == "" {
		host = cfg.String("host", "localhost")
	}
	batch := cfg.Int("batchSize", 1000)
	if batch <= 0 {
		batch = 1000
	}
	return mongoConfig{
		conn: &domain.DatabaseConnection{
			Driver:   domain.DatabaseDriverMongoDB,
			Host:     host,
			Port:     cfg.Int("port", 0),
			Database: cfg.String("database", ""),
			Username: cfg.String("username", ""),
		},
		password:   cfg.String("password", ""),
		collection: cfg.String("collection", ""),
		filter:     strings.TrimSpace(cfg.String("filter", "")),
		writeMode:  strings.ToLower(cfg.String("writeMode", writeModeAppend)),
		batchSize:  batch,
	}
}

// parseFilter decodes an extended JSON filter. Empty means all documents.
func parseFilter(s string) (bson.D, error) {
	if s == "" {
		return bson.D{}, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m Mongo) Validate(cfg etl.Config) error {
	if err := m.ConfigSchema().Validate(m.Type(), cfg); err != nil {
		return err
	}
	if _, err := parseFilter(strings.TrimSpace(cfg.String("filter", ""))); err != nil {
		return etl.ConfigErrorf(m.Type(), "filter: %v", err)
	}
	return nil
}

func (m Mongo) TestConnection(ctx context.Context, cfg etl.Config) error {
	c := parseMongoConfig(cfg)
	client, _, err := dbclient.OpenMongo(ctx, c.conn, c.password)
	if err != nil {
		return etl.ConnectionError(m.Type()+" test", err)
	}
	dbclient.DisconnectMongo(client)
	return nil
}

func (Mongo) CreateReader(cfg etl.Config) (etl.Reader, error) {
	return &mongoReader{cfg: parseMongoConfig(cfg)}, nil
}

func (Mongo) CreateWriter(cfg etl.Config) (etl.Writer, error) {
	return &mongoWriter{cfg: parseMongoConfig(cfg)}, nil
}

// recordFromDoc converts a decoded document into a record.
func recordFromDoc(doc bson.D) *etl.Record {
	rec := etl.NewRecord()
	for _, e := range doc {
		rec.Set(e.Key, fromBSON(e.Value))
	}
	return rec
}

func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = fromBSON(t[i])
		}
		return out
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	case bson.Decimal128:
		return t.String()
	case bson.Binary:
		return t.Data
	case int32:
		return int64(t)
	}
	return v
}

// docFromRecord converts a record into an ordered document. Nested records
// are converted recursively.
func docFromRecord(rec *etl.Record) bson.D {
	doc := make(bson.D, 0, rec.Len())
	rec.Each(func(name string, v any) {
		if name == "_id" {
			if s, ok := v.(string); ok {
				if oid, err := bson.ObjectIDFromHex(s); err == nil {
					v = oid
				}
			}
		}
		if nested, ok := v.(*etl.Record); ok {
			v = docFromRecord(nested)
		}
		doc = append(doc, bson.E{Key: name, Value: v})
	})
	return doc
}

// ── Reader ──

type mongoReader struct {
	cfg    mongoConfig
	client *mongo.Client
	coll   *mongo.Collection
	filter bson.D
	cursor *mongo.Cursor
	schema *etl.Schema
}

func (r *mongoReader) Open(ctx context.Context) error {
	filter, err := parseFilter(r.cfg.filter)
	if err != nil {
		return etl.ConfigErrorf("mongodb", "filter: %v", err)
	}
	client, dbName, err := dbclient.OpenMongo(ctx, r.cfg.conn, r.cfg.password)
	if err != nil {
		return etl.ConnectionError("open mongodb", err)
	}
	r.client = client
	r.coll = client.Database(dbName).Collection(r.cfg.collection)
	r.filter = filter
	return nil
}

func (r *mongoReader) Schema(ctx context.Context) (*etl.Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	if r.coll == nil {
		return nil, etl.ConnectionError("fetch schema", errors.New("reader is not open"))
	}
	var doc bson.D
	err := r.coll.FindOne(ctx, r.filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		r.schema = &etl.Schema{}
		return r.schema, nil
	}
	if err != nil {
		return nil, etl.ConnectionError("fetch schema", err)
	}
	r.schema = etl.SchemaFromRecord(recordFromDoc(doc))
	return r.schema, nil
}

func (r *mongoReader) Read(ctx context.Context) (etl.Iterator, error) {
	if r.coll == nil {
		return nil, etl.ConnectionError("read mongodb", errors.New("reader is not open"))
	}
	cursor, err := r.coll.Find(ctx, r.filter, options.Find().SetBatchSize(int32(r.cfg.batchSize)))
	if err != nil {
		return nil, etl.ConnectionError("find", err)
	}
	r.cursor = cursor

	return etl.FuncIterator(func(ctx context.Context) (*etl.Record, bool, error) {
		if !cursor.Next(ctx) {
			if err := cursor.Err(); err != nil {
				return nil, false, etl.ConnectionError("cursor", err)
			}
			return nil, false, nil
		}
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, false, etl.DataError("decode", err)
		}
		return recordFromDoc(doc), true, nil
	}, func() error {
		return cursor.Close(context.Background())
	}), nil
}

func (r *mongoReader) EstimateCount(ctx context.Context) int64 {
	if r.coll == nil {
		return -1
	}
	n, err := r.coll.CountDocuments(ctx, r.filter)
	if err != nil {
		slog.Warn("failed to count documents", "collection", r.cfg.collection, "error", err)
		return -1
	}
	return n
}

func (r *mongoReader) Close() error {
	if r.cursor != nil {
		r.cursor.Close(context.Background())
		r.cursor = nil
	}
	if r.client != nil {
		dbclient.DisconnectMongo(r.client)
		r.client = nil
	}
	return nil
}

// ── Writer ──
// MongoDB offers no transactions outside replica sets, so the writer holds
// every document until Commit.

type mongoWriter struct {
	cfg     mongoConfig
	client  *mongo.Client
	coll    *mongo.Collection
	buffer  []any
	written int64
}

func (w *mongoWriter) SetSchema(*etl.Schema) {}

func (w *mongoWriter) Open(ctx context.Context) error {
	client, dbName, err := dbclient.OpenMongo(ctx, w.cfg.conn, w.cfg.password)
	if err != nil {
		return etl.ConnectionError("open mongodb", err)
	}
	w.client = client
	w.coll = client.Database(dbName).Collection(w.cfg.collection)
	return nil
}

func (w *mongoWriter) Write(_ context.Context, rec *etl.Record) error {
	w.buffer = append(w.buffer, docFromRecord(rec))
	return nil
}

func (w *mongoWriter) WriteAll(ctx context.Context, it etl.Iterator) error {
	return etl.WriteEach(ctx, w, it)
}

func (w *mongoWriter) Commit(ctx context.Context) error {
	if w.coll == nil {
		return etl.ConnectionError("commit", errors.New("writer is not open"))
	}
	if w.cfg.writeMode == writeModeOverwrite {
		res, err := w.coll.DeleteMany(ctx, bson.D{})
		if err != nil {
			return etl.ConnectionError("clear collection", err)
		}
		slog.Info("collection cleared", "collection", w.cfg.collection, "deleted", res.DeletedCount)
	}
	for start := 0; start < len(w.buffer); start += w.cfg.batchSize {
		end := min(start+w.cfg.batchSize, len(w.buffer))
		res, err := w.coll.InsertMany(ctx, w.buffer[start:end])
		if err != nil {
			return etl.ConnectionError("insert documents", err)
		}
		w.written += int64(len(res.InsertedIDs))
	}
	w.buffer = nil
	slog.Info("documents written", "collection", w.cfg.collection, "count", w.written)
	return nil
}

func (w *mongoWriter) Rollback(context.Context) error {
	w.buffer = nil
	return nil
}

func (w *mongoWriter) Close() error {
	w.buffer = nil
	if w.client != nil {
		dbclient.DisconnectMongo(w.client)
		w.client = nil
	}
	return nil
}

func (w *mongoWriter) WrittenCount() int64 { return w.written }
