package storage_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"
	"github.com/frankawp/data-pipeline-builder/internal/storage"
)

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func doc(name string) *etl.Pipeline {
	return &etl.Pipeline{
		Name: name,
		Nodes: []etl.Node{
			{ID: "src", Type: etl.NodeSource, PluginType: "csv", Config: etl.Config{"filePath": "in.csv"}},
		},
		Variables: map[string]any{"env": "test"},
	}
}

// ─────────────────────────────────────────────────────────────
// Migrations
// ─────────────────────────────────────────────────────────────

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	for range 2 {
		db, err := storage.New(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		db.Close()
	}
}

// ─────────────────────────────────────────────────────────────
// PipelineStore
// ─────────────────────────────────────────────────────────────

func TestPipelineStore_SaveGet(t *testing.T) {
	s := storage.NewPipelineStore(openDB(t))

	def := &domain.PipelineDefinition{Pipeline: doc("orders")}
	if err := s.SavePipeline(def); err != nil {
		t.Fatal(err)
	}
	if def.ID == "" || def.Pipeline.ID != def.ID {
		t.Fatalf("id not synced: def=%q doc=%q", def.ID, def.Pipeline.ID)
	}
	if def.Name != "orders" || def.TriggerType != domain.TriggerManual {
		t.Errorf("defaults not applied: %+v", def)
	}

	got, err := s.GetPipeline(def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline.Name != "orders" || len(got.Pipeline.Nodes) != 1 {
		t.Errorf("document = %+v", got.Pipeline)
	}
	if got.Pipeline.Nodes[0].Config.String("filePath", "") != "in.csv" {
		t.Errorf("node config lost: %v", got.Pipeline.Nodes[0].Config)
	}
	if got.Pipeline.Variables["env"] != "test" {
		t.Errorf("variables lost: %v", got.Pipeline.Variables)
	}
}

func TestPipelineStore_SaveReplacesByID(t *testing.T) {
	s := storage.NewPipelineStore(openDB(t))

	def := &domain.PipelineDefinition{ID: "p1", Pipeline: doc("first")}
	if err := s.SavePipeline(def); err != nil {
		t.Fatal(err)
	}
	created := def.CreatedAt

	time.Sleep(5 * time.Millisecond)
	def.Pipeline = doc("second")
	def.Name = "second"
	if err := s.SavePipeline(def); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListPipelines()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("pipelines = %d, want 1", len(all))
	}
	if all[0].Name != "second" || all[0].Pipeline.Name != "second" {
		t.Errorf("not replaced: %+v", all[0])
	}
	if !all[0].CreatedAt.Equal(created) || !all[0].UpdatedAt.After(created) {
		t.Errorf("timestamps: created=%v updated=%v", all[0].CreatedAt, all[0].UpdatedAt)
	}
}

func TestPipelineStore_ListTriggered(t *testing.T) {
	s := storage.NewPipelineStore(openDB(t))

	defs := []*domain.PipelineDefinition{
		{ID: "manual", Pipeline: doc("m"), Enabled: true},
		{ID: "cron", Pipeline: doc("c"), TriggerType: domain.TriggerSchedule, TriggerConfig: "*/5 * * * *", Enabled: true},
		{ID: "watch", Pipeline: doc("w"), TriggerType: domain.TriggerFileWatch, TriggerConfig: "/tmp/in.csv", Enabled: true},
		{ID: "off", Pipeline: doc("o"), TriggerType: domain.TriggerSchedule, TriggerConfig: "@daily", Enabled: false},
	}
	for _, d := range defs {
		if err := s.SavePipeline(d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListTriggeredPipelines()
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, d := range got {
		ids[d.ID] = true
	}
	if len(got) != 2 || !ids["cron"] || !ids["watch"] {
		t.Errorf("triggered = %v, want cron and watch", ids)
	}
}

func TestPipelineStore_DeleteRemovesHistory(t *testing.T) {
	db := openDB(t)
	ps := storage.NewPipelineStore(db)
	es := storage.NewExecutionStore(db)

	if err := ps.SavePipeline(&domain.PipelineDefinition{ID: "p1", Pipeline: doc("x")}); err != nil {
		t.Fatal(err)
	}
	if err := es.CreateExecution(&domain.Execution{PipelineID: "p1"}); err != nil {
		t.Fatal(err)
	}

	if err := ps.DeletePipeline("p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := ps.GetPipeline("p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if runs, _ := es.ListExecutions("p1", 0); len(runs) != 0 {
		t.Errorf("history kept: %d runs", len(runs))
	}
	if err := ps.DeletePipeline("p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

// ─────────────────────────────────────────────────────────────
// ExecutionStore
// ─────────────────────────────────────────────────────────────

func TestExecutionStore_Lifecycle(t *testing.T) {
	es := storage.NewExecutionStore(openDB(t))

	e := &domain.Execution{PipelineID: "p1"}
	if err := es.CreateExecution(e); err != nil {
		t.Fatal(err)
	}
	stub, err := es.GetExecution(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stub.Status != etl.StatusRunning || stub.EndTime != nil {
		t.Errorf("stub = %+v", stub)
	}

	res := &etl.ExecutionResult{
		ExecutionID:           e.ID,
		PipelineID:            "p1",
		Status:                etl.StatusCompleted,
		StartTime:             e.StartTime,
		EndTime:               time.Now(),
		TotalRecordsProcessed: 7,
		TotalRecordsBuffered:  9,
		NodeResults:           []etl.NodeResult{{NodeID: "src", Status: etl.StatusCompleted}},
	}
	if err := es.FinishExecution(e.ID, res); err != nil {
		t.Fatal(err)
	}

	got, err := es.GetExecution(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != etl.StatusCompleted || got.TotalRecordsProcessed != 7 || got.TotalRecordsBuffered != 9 {
		t.Errorf("finished = %+v", got)
	}
	if got.EndTime == nil || got.ResultJSON == "" || got.ErrorMessage != "" {
		t.Errorf("finished = %+v", got)
	}
}

func TestExecutionStore_FailureKeepsMessageOnly(t *testing.T) {
	es := storage.NewExecutionStore(openDB(t))

	e := &domain.Execution{PipelineID: "p1"}
	if err := es.CreateExecution(e); err != nil {
		t.Fatal(err)
	}
	res := &etl.ExecutionResult{Status: etl.StatusFailed, ErrorMessage: "node src: boom"}
	if err := es.FinishExecution(e.ID, res); err != nil {
		t.Fatal(err)
	}

	got, _ := es.GetExecution(e.ID)
	if got.ErrorMessage != "node src: boom" || got.ResultJSON != "" {
		t.Errorf("failed = %+v", got)
	}
}

func TestExecutionStore_FinishUnknown(t *testing.T) {
	es := storage.NewExecutionStore(openDB(t))
	err := es.FinishExecution("nope", &etl.ExecutionResult{Status: etl.StatusFailed})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecutionStore_ListNewestFirst(t *testing.T) {
	es := storage.NewExecutionStore(openDB(t))

	base := time.Now().Add(-time.Hour)
	for i, pid := range []string{"a", "b", "a", "a"} {
		e := &domain.Execution{ID: pid + string(rune('0'+i)), PipelineID: pid, StartTime: base.Add(time.Duration(i) * time.Minute)}
		if err := es.CreateExecution(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := es.ListExecutions("a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a3" || got[1].ID != "a2" {
		t.Errorf("runs = %+v", got)
	}

	all, _ := es.ListExecutions("", 0)
	if len(all) != 4 {
		t.Errorf("all runs = %d, want 4", len(all))
	}
}
