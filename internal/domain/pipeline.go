package domain

import (
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// TriggerType decides what starts a stored pipeline.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch TriggerType = "file_watch" // TriggerConfig is a file or directory path
)

// PipelineDefinition is a stored pipeline document plus how it is triggered.
type PipelineDefinition struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Pipeline      *etl.Pipeline `json:"pipeline"`
	TriggerType   TriggerType   `json:"triggerType"`
	TriggerConfig string        `json:"triggerConfig"`
	Enabled       bool          `json:"enabled"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type PipelineStore interface {
	SavePipeline(def *PipelineDefinition) error
	GetPipeline(id string) (*PipelineDefinition, error)
	ListPipelines() ([]PipelineDefinition, error)
	ListTriggeredPipelines() ([]PipelineDefinition, error)
	DeletePipeline(id string) error
}

// Execution is one row of run history.
type Execution struct {
	ID                    string              `json:"id"`
	PipelineID            string              `json:"pipelineId"`
	Status                etl.ExecutionStatus `json:"status"`
	StartTime             time.Time           `json:"startTime"`
	EndTime               *time.Time          `json:"endTime,omitempty"`
	TotalRecordsProcessed int64               `json:"totalRecordsProcessed"`
	TotalRecordsBuffered  int64               `json:"totalRecordsBuffered"`
	ResultJSON            string              `json:"resultJson,omitempty"`
	ErrorMessage          string              `json:"errorMessage,omitempty"`
}

type ExecutionStore interface {
	// CreateExecution persists a RUNNING stub before the run starts.
	CreateExecution(e *Execution) error
	// FinishExecution records the outcome of a run.
	FinishExecution(id string, result *etl.ExecutionResult) error
	GetExecution(id string) (*Execution, error)
	ListExecutions(pipelineID string, limit int) ([]Execution, error)
}
