package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from whatever surface reports progress
// ─────────────────────────────────────────────────────────────

// Events emitted by PipelineService.
const (
	EventRunStarted   = "pipeline:started"
	EventNodeFinished = "pipeline:node"
	EventRunFinished  = "pipeline:finished"
	EventTriggered    = "pipeline:triggered"
)

// EventEmitter receives run lifecycle events. The CLI logs them; tests
// record them with MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// SlogEmitter writes every event as a structured log line.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (e SlogEmitter) Emit(ctx context.Context, event string, data any) {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "event", "event", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded events called event.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
