package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the lifecycle state of a run or of one node in it.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusCancelled ExecutionStatus = "CANCELLED"
)

// Finished reports whether s is terminal.
func (s ExecutionStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type varsKey struct{}

// WithVariables attaches the run's variables to ctx so transformers can
// reference them in expressions.
func WithVariables(ctx context.Context, vars map[string]any) context.Context {
	return context.WithValue(ctx, varsKey{}, vars)
}

// VariablesFrom returns the variables attached by WithVariables, or nil.
func VariablesFrom(ctx context.Context) map[string]any {
	vars, _ := ctx.Value(varsKey{}).(map[string]any)
	return vars
}

// ExecutionContext is the mutable state of one run. It is owned by the
// executor while the run is in progress.
type ExecutionContext struct {
	ExecutionID  string                 `json:"executionId"`
	PipelineID   string                 `json:"pipelineId"`
	StartTime    time.Time              `json:"startTime"`
	EndTime      time.Time              `json:"endTime"`
	Status       ExecutionStatus        `json:"status"`
	Variables    map[string]any         `json:"variables,omitempty"`
	NodeStats    map[string]*NodeResult `json:"nodeStats,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
}

// NewExecutionContext creates a PENDING context with a fresh execution id.
func NewExecutionContext(pipelineID string, vars map[string]any) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: uuid.New().String(),
		PipelineID:  pipelineID,
		Status:      StatusPending,
		Variables:   vars,
		NodeStats:   make(map[string]*NodeResult),
	}
}

// NodeResult records the outcome of one node.
type NodeResult struct {
	NodeID         string          `json:"nodeId"`
	NodeName       string          `json:"nodeName"`
	RecordsRead    int64           `json:"recordsRead"`
	RecordsWritten int64           `json:"recordsWritten"`
	DurationMs     int64           `json:"durationMs"`
	Status         ExecutionStatus `json:"status"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
}

// ExecutionResult is the immutable record of one completed or failed run.
//
// TotalRecordsProcessed counts records delivered to TARGET nodes; for a
// pipeline without targets it falls back to TotalRecordsBuffered, the sum of
// records materialised by every non-TARGET node. With targets present the two
// differ: s -> filter -> target buffers each kept record twice and delivers it
// once, so Processed is the delivered count, not the buffered sum.
type ExecutionResult struct {
	ExecutionID           string          `json:"executionId"`
	PipelineID            string          `json:"pipelineId"`
	Status                ExecutionStatus `json:"status"`
	StartTime             time.Time       `json:"startTime"`
	EndTime               time.Time       `json:"endTime"`
	TotalRecordsProcessed int64           `json:"totalRecordsProcessed"`
	TotalRecordsBuffered  int64           `json:"totalRecordsBuffered"`
	NodeResults           []NodeResult    `json:"nodeResults"`
	ErrorMessage          string          `json:"errorMessage,omitempty"`
}

// Duration is the wall time of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NodeResult returns the result recorded for nodeID.
func (r *ExecutionResult) NodeResult(nodeID string) (NodeResult, bool) {
	for _, nr := range r.NodeResults {
		if nr.NodeID == nodeID {
			return nr, true
		}
	}
	return NodeResult{}, false
}
