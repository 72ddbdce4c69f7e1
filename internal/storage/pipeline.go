package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored row does not exist.
var ErrNotFound = errors.New("not found")

// PipelineStore persists pipeline definitions as JSON documents.
type PipelineStore struct {
	db *DB
}

// NewPipelineStore creates a new PipelineStore.
func NewPipelineStore(db *DB) *PipelineStore {
	return &PipelineStore{db: db}
}

const pipelineColumns = `id, name, description, document, trigger_type, trigger_config, enabled, created_at, updated_at`

// SavePipeline inserts def, or replaces the row with the same id. A missing
// id is generated; the document's own id is kept in sync with it.
func (s *PipelineStore) SavePipeline(def *domain.PipelineDefinition) error {
	if def.Pipeline == nil {
		return fmt.Errorf("pipeline document is required")
	}
	now := time.Now()
	if def.ID == "" {
		def.ID = def.Pipeline.ID
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.Pipeline.ID = def.ID
	if def.Name == "" {
		def.Name = def.Pipeline.Name
	}
	if def.TriggerType == "" {
		def.TriggerType = domain.TriggerManual
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	doc, err := json.Marshal(def.Pipeline)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}

	_, err = s.db.conn.Exec(
		`INSERT INTO pipelines (`+pipelineColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description,
		 document=excluded.document, trigger_type=excluded.trigger_type,
		 trigger_config=excluded.trigger_config, enabled=excluded.enabled, updated_at=excluded.updated_at`,
		def.ID, def.Name, def.Description, string(doc),
		def.TriggerType, def.TriggerConfig, def.Enabled,
		def.CreatedAt, def.UpdatedAt,
	)
	return err
}

func (s *PipelineStore) GetPipeline(id string) (*domain.PipelineDefinition, error) {
	row := s.db.conn.QueryRow(`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id)
	def, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return def, err
}

func (s *PipelineStore) ListPipelines() ([]domain.PipelineDefinition, error) {
	return s.list(`SELECT ` + pipelineColumns + ` FROM pipelines ORDER BY created_at ASC`)
}

// ListTriggeredPipelines returns enabled pipelines with a schedule or
// file-watch trigger.
func (s *PipelineStore) ListTriggeredPipelines() ([]domain.PipelineDefinition, error) {
	return s.list(`SELECT ` + pipelineColumns + ` FROM pipelines
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

// DeletePipeline removes the definition and its run history.
func (s *PipelineStore) DeletePipeline(id string) error {
	if _, err := s.db.conn.Exec(`DELETE FROM executions WHERE pipeline_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM pipelines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PipelineStore) list(query string) ([]domain.PipelineDefinition, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []domain.PipelineDefinition
	for rows.Next() {
		def, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPipeline(row scanner) (*domain.PipelineDefinition, error) {
	def := &domain.PipelineDefinition{}
	var doc string
	if err := row.Scan(
		&def.ID, &def.Name, &def.Description, &doc,
		&def.TriggerType, &def.TriggerConfig, &def.Enabled,
		&def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p, err := etl.ParsePipeline([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", def.ID, err)
	}
	def.Pipeline = p
	return def, nil
}
