package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frankawp/data-pipeline-builder/internal/plugins"
	"github.com/frankawp/data-pipeline-builder/internal/service"
	"github.com/frankawp/data-pipeline-builder/internal/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestServer(t *testing.T, readOnly bool) *Server {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	host := plugins.NewHost(nil, nil)
	svc := service.NewPipelineService(
		storage.NewPipelineStore(db), storage.NewExecutionStore(db),
		host.Connectors, host.Transformers, &service.MockEmitter{},
	)
	t.Cleanup(svc.Stop)
	return New(Deps{Pipelines: svc, ReadOnly: readOnly})
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// copyPipeline reads in.csv from dir and writes out.csv next to it.
func copyPipeline(t *testing.T, dir string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "in.csv"), []byte("id,amount\n1,5\n2,-3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := map[string]any{
		"id":   "copy",
		"name": "copy",
		"nodes": []map[string]any{
			{"id": "src", "type": "SOURCE", "pluginType": "csv", "config": map[string]any{"filePath": "${dir}/in.csv"}},
			{"id": "dst", "type": "TARGET", "pluginType": "csv", "config": map[string]any{"filePath": "${dir}/out.csv"}},
		},
		"edges":     []map[string]any{{"id": "e1", "sourceNodeId": "src", "targetNodeId": "dst"}},
		"variables": map[string]any{"dir": dir},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// ─────────────────────────────────────────────────────────────
// Plugin tools
// ─────────────────────────────────────────────────────────────

func TestListConnectors(t *testing.T) {
	s := newTestServer(t, false)
	res, err := s.handleListConnectors(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	for _, typ := range []string{`"csv"`, `"json"`, `"jdbc"`, `"mongodb"`} {
		if !strings.Contains(text, typ) {
			t.Errorf("missing %s in %s", typ, text)
		}
	}
}

func TestTestConnection_AcceptsObjectConfig(t *testing.T) {
	s := newTestServer(t, false)
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	os.WriteFile(path, []byte("a\n1\n"), 0o644)

	res, err := s.handleTestConnection(context.Background(), call(map[string]any{
		"connectorType": "csv",
		"configJSON":    map[string]any{"filePath": path},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), `"success": true`) {
		t.Errorf("result = %s", resultText(t, res))
	}
}

// ─────────────────────────────────────────────────────────────
// Pipeline tools
// ─────────────────────────────────────────────────────────────

func TestValidatePipeline_ReportsInvalidDocument(t *testing.T) {
	s := newTestServer(t, false)
	doc := `{"nodes":[{"id":"a","type":"SOURCE","pluginType":"ftp"}]}`

	res, err := s.handleValidatePipeline(context.Background(), call(map[string]any{"pipelineJSON": doc}))
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out["valid"] != false || !strings.Contains(out["error"].(string), "ftp") {
		t.Errorf("out = %v", out)
	}
}

func TestRunPipeline_InlineDocument(t *testing.T) {
	s := newTestServer(t, false)
	dir := t.TempDir()

	res, err := s.handleRunPipeline(context.Background(), call(map[string]any{"pipelineJSON": copyPipeline(t, dir)}))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Status                string `json:"status"`
		TotalRecordsProcessed int64  `json:"totalRecordsProcessed"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "COMPLETED" || out.TotalRecordsProcessed != 2 {
		t.Errorf("out = %+v", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.csv")); err != nil {
		t.Errorf("target not written: %v", err)
	}
}

func TestSaveThenRunStored(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()
	dir := t.TempDir()

	if _, err := s.handleSavePipeline(ctx, call(map[string]any{"pipelineJSON": copyPipeline(t, dir)})); err != nil {
		t.Fatal(err)
	}
	list, err := s.handleListPipelines(ctx, call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, list), `"id": "copy"`) {
		t.Errorf("list = %s", resultText(t, list))
	}

	if _, err := s.handleRunPipeline(ctx, call(map[string]any{"pipelineId": "copy"})); err != nil {
		t.Fatal(err)
	}
	runs, err := s.handleListExecutions(ctx, call(map[string]any{"pipelineId": "copy", "limit": float64(5)}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, runs), `"status": "COMPLETED"`) {
		t.Errorf("runs = %s", resultText(t, runs))
	}
}

func TestReadOnlyRefusesWrites(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	for name, h := range map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"run_pipeline":    s.handleRunPipeline,
		"save_pipeline":   s.handleSavePipeline,
		"delete_pipeline": s.handleDeletePipeline,
	} {
		res, err := h(ctx, call(map[string]any{"pipelineId": "x"}))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(resultText(t, res), "read-only") {
			t.Errorf("%s = %s", name, resultText(t, res))
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Resources
// ─────────────────────────────────────────────────────────────

func TestPipelineResource(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()
	if _, err := s.handleSavePipeline(ctx, call(map[string]any{"pipelineJSON": copyPipeline(t, t.TempDir())})); err != nil {
		t.Fatal(err)
	}

	var req mcp.ReadResourceRequest
	req.Params.URI = "pipeline://pipelines/copy"
	contents, err := s.handlePipelineResource(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"pluginType": "csv"`) {
		t.Errorf("document = %s", text)
	}

	req.Params.URI = "pipeline://pipelines/"
	if _, err := s.handlePipelineResource(ctx, req); err == nil {
		t.Error("expected error for URI without id")
	}
}
