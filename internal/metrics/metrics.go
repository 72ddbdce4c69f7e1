// Package metrics records operational metrics for pipeline runs behind a
// small backend interface. The default backend is a no-op, so recording is
// always safe; concrete backends live in subpackages (prompush, datadog).
package metrics

import (
	"errors"
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it.
	Flush() error
}

// Metric names.
const (
	NodeTotal       = "pipeline_node_total"
	NodeDuration    = "pipeline_node_duration_seconds"
	RunTotal        = "pipeline_run_total"
	RunDuration     = "pipeline_run_duration_seconds"
	RecordsTotal    = "pipeline_records_total"
	statusSuccess   = "success"
	statusFailure   = "failure"
	labelPipeline   = "pipeline"
	labelNodeType   = "node_type"
	labelPluginType = "plugin"
	labelStatus     = "status"
	labelKind       = "kind"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

// Multi fans every call out to several backends.
type Multi []Backend

func (m Multi) IncCounter(name string, delta float64, labels Labels) {
	for _, b := range m {
		b.IncCounter(name, delta, labels)
	}
}

func (m Multi) ObserveHistogram(name string, value float64, labels Labels) {
	for _, b := range m {
		b.ObserveHistogram(name, value, labels)
	}
}

// Flush flushes every backend and joins their errors.
func (m Multi) Flush() error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.Flush())
	}
	return errors.Join(errs...)
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func statusOf(err error) string {
	if err != nil {
		return statusFailure
	}
	return statusSuccess
}

// RecordNode measures one node execution.
func RecordNode(pipeline, nodeType, plugin string, err error, d time.Duration) {
	lbls := Labels{
		labelPipeline:   pipeline,
		labelNodeType:   nodeType,
		labelPluginType: plugin,
		labelStatus:     statusOf(err),
	}
	b := current()
	b.IncCounter(NodeTotal, 1, lbls)
	b.ObserveHistogram(NodeDuration, d.Seconds(), lbls)
}

// RecordRun measures one whole pipeline run. status is the final run status.
func RecordRun(pipeline, status string, d time.Duration) {
	lbls := Labels{labelPipeline: pipeline, labelStatus: status}
	b := current()
	b.IncCounter(RunTotal, 1, lbls)
	b.ObserveHistogram(RunDuration, d.Seconds(), lbls)
}

// RecordRows counts records of a kind ("read", "written") for a pipeline.
func RecordRows(pipeline, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		labelPipeline: pipeline,
		labelKind:     kind,
	})
}
