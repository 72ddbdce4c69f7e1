package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/service"
)

// ─────────────────────────────────────────────────────────────
// runningGuard
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_AcquireReportsHolder(t *testing.T) {
	var g service.ExportedRunningGuard

	release1, _, ok := g.Acquire("p-1", "exec-a")
	if !ok {
		t.Fatal("expected first Acquire to succeed")
	}
	_, holder, ok := g.Acquire("p-1", "exec-b")
	if ok {
		t.Fatal("expected second Acquire for the same pipeline to fail")
	}
	if holder.ExecutionID != "exec-a" || holder.Started.IsZero() {
		t.Errorf("holder = %+v, want exec-a with a start time", holder)
	}
	release2, _, ok := g.Acquire("p-0", "exec-c")
	if !ok {
		t.Fatal("expected Acquire for a different pipeline to succeed")
	}

	active := g.Active()
	if len(active) != 2 || active[0].PipelineKey != "p-0" || active[1].ExecutionID != "exec-a" {
		t.Errorf("Active = %+v, want p-0 then p-1", active)
	}

	release1()
	release1() // second call is a no-op
	release2()
	if n := len(g.Active()); n != 0 {
		t.Errorf("Active after release = %d", n)
	}
	if _, _, ok := g.Acquire("p-1", "exec-d"); !ok {
		t.Fatal("expected Acquire to succeed after release")
	}
}

func TestRunningGuard_Wait(t *testing.T) {
	var g service.ExportedRunningGuard

	release, _, ok := g.Acquire("p-a", "exec-1")
	if !ok {
		t.Fatal("expected Acquire to succeed")
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(short); err != context.DeadlineExceeded {
		t.Errorf("Wait with a held key = %v, want DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()
	ctx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v, want nil after release", err)
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)
	m.Emit(ctx, "test:event", nil)

	if len(m.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != "test:event" {
		t.Errorf("expected 'test:event', got %q", m.Events[0].Event)
	}
	if n := len(m.Named("test:event")); n != 2 {
		t.Errorf("Named = %d events, want 2", n)
	}
}

func TestSlogEmitter_NilLoggerUsesDefault(t *testing.T) {
	// Must not panic without a logger.
	service.SlogEmitter{}.Emit(context.Background(), "x", 1)
}
