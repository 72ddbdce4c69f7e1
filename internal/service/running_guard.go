package service

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// ExportedRunningGuard lets service_test drive the guard directly.
type ExportedRunningGuard = runningGuard

// ─────────────────────────────────────────────────────────────
// runningGuard: at most one in-flight execution per pipeline key
// ─────────────────────────────────────────────────────────────

// ActiveRun identifies the execution currently holding a pipeline key.
type ActiveRun struct {
	PipelineKey string    `json:"pipelineKey"`
	ExecutionID string    `json:"executionId"`
	Started     time.Time `json:"started"`
}

type runningGuard struct {
	mu     sync.Mutex
	active map[string]ActiveRun
	wg     sync.WaitGroup
}

// Acquire claims key for executionID. When another execution already holds
// the key, ok is false and holder describes it. release is idempotent.
func (g *runningGuard) Acquire(key, executionID string) (release func(), holder ActiveRun, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, busy := g.active[key]; busy {
		return nil, cur, false
	}
	if g.active == nil {
		g.active = make(map[string]ActiveRun)
	}
	run := ActiveRun{PipelineKey: key, ExecutionID: executionID, Started: time.Now()}
	g.active[key] = run
	g.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
			g.wg.Done()
		})
	}, run, true
}

// Active lists in-flight executions ordered by key.
func (g *runningGuard) Active() []ActiveRun {
	g.mu.Lock()
	runs := slices.Collect(maps.Values(g.active))
	g.mu.Unlock()
	slices.SortFunc(runs, func(a, b ActiveRun) int { return strings.Compare(a.PipelineKey, b.PipelineKey) })
	return runs
}

// Wait blocks until nothing holds a key. It returns ctx.Err() when ctx ends
// first.
func (g *runningGuard) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
