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

// ExecutionStore persists run history.
type ExecutionStore struct {
	db *DB
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(db *DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionColumns = `id, pipeline_id, status, start_time, end_time,
	total_records_processed, total_records_buffered, result_json, error_message`

// CreateExecution stores the RUNNING stub of a run about to start.
func (s *ExecutionStore) CreateExecution(e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = etl.StatusRunning
	}
	if e.StartTime.IsZero() {
		e.StartTime = time.Now()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO executions (id, pipeline_id, status, start_time) VALUES (?, ?, ?, ?)`,
		e.ID, e.PipelineID, e.Status, e.StartTime,
	)
	return err
}

// FinishExecution records the final status, totals and either the full
// result payload or the error message.
func (s *ExecutionStore) FinishExecution(id string, result *etl.ExecutionResult) error {
	var resultJSON string
	if result.Status == etl.StatusCompleted {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = string(b)
	}
	end := result.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	res, err := s.db.conn.Exec(
		`UPDATE executions SET status=?, end_time=?, total_records_processed=?,
		 total_records_buffered=?, result_json=?, error_message=? WHERE id=?`,
		result.Status, end, result.TotalRecordsProcessed, result.TotalRecordsBuffered,
		resultJSON, result.ErrorMessage, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *ExecutionStore) GetExecution(id string) (*domain.Execution, error) {
	row := s.db.conn.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return e, err
}

// ListExecutions returns the newest runs of a pipeline first. An empty
// pipelineID lists every pipeline.
func (s *ExecutionStore) ListExecutions(pipelineID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + executionColumns + ` FROM executions`
	args := []any{}
	if pipelineID != "" {
		query += ` WHERE pipeline_id = ?`
		args = append(args, pipelineID)
	}
	query += ` ORDER BY start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanExecution(row scanner) (*domain.Execution, error) {
	e := &domain.Execution{}
	var end sql.NullTime
	if err := row.Scan(
		&e.ID, &e.PipelineID, &e.Status, &e.StartTime, &end,
		&e.TotalRecordsProcessed, &e.TotalRecordsBuffered, &e.ResultJSON, &e.ErrorMessage,
	); err != nil {
		return nil, err
	}
	if end.Valid {
		e.EndTime = &end.Time
	}
	return e, nil
}
