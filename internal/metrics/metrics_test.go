package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu         sync.Mutex
	counters   []call
	histograms []call
	flushes    int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(nil) })
	return fb
}

func TestRecordNode_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordNode("p1", "SOURCE", "csv", nil, 2*time.Second)
	RecordNode("p1", "TARGET", "jdbc", errors.New("boom"), 500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("got %d counters, %d histograms; want 2 and 2", len(fb.counters), len(fb.histograms))
	}
	if got := fb.counters[0].labels["status"]; got != "success" {
		t.Errorf("counter[0] status = %q, want success", got)
	}
	if got := fb.counters[1].labels["status"]; got != "failure" {
		t.Errorf("counter[1] status = %q, want failure", got)
	}
	if got := fb.counters[1].labels["plugin"]; got != "jdbc" {
		t.Errorf("counter[1] plugin = %q, want jdbc", got)
	}
	if got := fb.histograms[0].value; got != 2 {
		t.Errorf("histogram[0] = %v, want 2", got)
	}
}

func TestRecordRows_IgnoresNonPositive(t *testing.T) {
	fb := install(t)

	RecordRows("p1", "read", 0)
	RecordRows("p1", "read", -3)
	RecordRows("p1", "written", 7)

	if len(fb.counters) != 1 {
		t.Fatalf("got %d counter calls, want 1", len(fb.counters))
	}
	c := fb.counters[0]
	if c.name != RecordsTotal || c.value != 7 || c.labels["kind"] != "written" {
		t.Errorf("counter = %#v", c)
	}
}

func TestFlush_DelegatesAndNilRestoresNop(t *testing.T) {
	fb := install(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushes != 1 {
		t.Errorf("flushes = %d, want 1", fb.flushes)
	}

	SetBackend(nil)
	RecordRun("p1", "COMPLETED", time.Second)
	if len(fb.counters) != 0 {
		t.Errorf("recorded into replaced backend: %d calls", len(fb.counters))
	}
}

type failingFlush struct{ fakeBackend }

func (*failingFlush) Flush() error { return errors.New("push failed") }

func TestMulti_FansOut(t *testing.T) {
	a, b := &fakeBackend{}, &failingFlush{}
	SetBackend(Multi{a, b})
	t.Cleanup(func() { SetBackend(nil) })

	RecordRun("p1", "COMPLETED", time.Second)
	if len(a.counters) != 1 || len(b.counters) != 1 {
		t.Errorf("counters = %d and %d, want 1 each", len(a.counters), len(b.counters))
	}
	if err := Flush(); err == nil || a.flushes != 1 {
		t.Errorf("Flush err = %v, flushes = %d", err, a.flushes)
	}
}
