// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
package prompush

import (
	"fmt"

	"github.com/frankawp/data-pipeline-builder/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Pushgateway implementation of metrics.Backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	nodeCounter  *prometheus.CounterVec
	nodeDuration *prometheus.SummaryVec
	runCounter   *prometheus.CounterVec
	runDuration  *prometheus.SummaryVec
	records      *prometheus.CounterVec
}

var nodeLabels = []string{"pipeline", "node_type", "plugin", "status"}

// NewBackend builds a backend that pushes to gatewayURL under jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "pipeline"
	}

	objectives := map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		nodeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.NodeTotal,
			Help: "Node executions by pipeline, node type, plugin and status.",
		}, nodeLabels),
		nodeDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.NodeDuration,
			Help:       "Node execution time in seconds.",
			Objectives: objectives,
		}, nodeLabels),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Pipeline runs by final status.",
		}, []string{"pipeline", "status"}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.RunDuration,
			Help:       "Pipeline run time in seconds.",
			Objectives: objectives,
		}, []string{"pipeline", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records read or written per pipeline.",
		}, []string{"pipeline", "kind"}),
	}

	for _, c := range []prometheus.Collector{b.nodeCounter, b.nodeDuration, b.runCounter, b.runDuration, b.records} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, l metrics.Labels) {
	switch name {
	case metrics.NodeTotal:
		b.nodeCounter.WithLabelValues(l["pipeline"], l["node_type"], l["plugin"], l["status"]).Add(delta)
	case metrics.RunTotal:
		b.runCounter.WithLabelValues(l["pipeline"], l["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(l["pipeline"], l["kind"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, l metrics.Labels) {
	switch name {
	case metrics.NodeDuration:
		b.nodeDuration.WithLabelValues(l["pipeline"], l["node_type"], l["plugin"], l["status"]).Observe(value)
	case metrics.RunDuration:
		b.runDuration.WithLabelValues(l["pipeline"], l["status"]).Observe(value)
	}
}

// Flush pushes the registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}

// Gatherer exposes the registry, mainly for tests.
func (b *Backend) Gatherer() prometheus.Gatherer {
	return b.reg
}
