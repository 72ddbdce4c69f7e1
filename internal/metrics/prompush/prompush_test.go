package prompush

import (
	"testing"

	"github.com/frankawp/data-pipeline-builder/internal/metrics"
)

func TestNewBackend_RequiresURL(t *testing.T) {
	if _, err := NewBackend("job", ""); err == nil {
		t.Fatal("expected error for empty gateway URL")
	}
}

func TestBackend_CollectsNodeAndRecordMetrics(t *testing.T) {
	b, err := NewBackend("", "http://127.0.0.1:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.NodeTotal, 1, metrics.Labels{"pipeline": "p", "node_type": "SOURCE", "plugin": "csv", "status": "success"})
	b.ObserveHistogram(metrics.NodeDuration, 0.25, metrics.Labels{"pipeline": "p", "node_type": "SOURCE", "plugin": "csv", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"pipeline": "p", "kind": "read"})
	b.IncCounter("unknown_metric", 1, nil)

	families, err := b.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]bool{}
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	for _, name := range []string{metrics.NodeTotal, metrics.NodeDuration, metrics.RecordsTotal} {
		if !got[name] {
			t.Errorf("metric family %q not gathered", name)
		}
	}
	if b.jobName != "pipeline" {
		t.Errorf("jobName = %q, want default pipeline", b.jobName)
	}
}
