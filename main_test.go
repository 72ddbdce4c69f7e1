package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ── helpers ──────────────────────────────────────────────

const copyDoc = `{
  "id": "cli-copy",
  "name": "cli copy",
  "variables": {"dir": %q},
  "nodes": [
    {"id": "src", "type": "SOURCE", "pluginType": "csv", "config": {"filePath": "${dir}/in.csv"}},
    {"id": "keep", "type": "TRANSFORMER", "pluginType": "filter", "config": {"condition": "amount > 0"}},
    {"id": "dst", "type": "TARGET", "pluginType": "csv", "config": {"filePath": "${dir}/out.csv"}}
  ],
  "edges": [
    {"id": "e1", "sourceNodeId": "src", "targetNodeId": "keep"},
    {"id": "e2", "sourceNodeId": "keep", "targetNodeId": "dst"}
  ]
}`

func writePipeline(t *testing.T) (dir, doc string) {
	t.Helper()
	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "in.csv"), []byte("id,amount\n1,5\n2,-3\n3,12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc = filepath.Join(dir, "pipeline.json")
	body := strings.Replace(copyDoc, "%q", `"`+filepath.ToSlash(dir)+`"`, 1)
	if err := os.WriteFile(doc, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, doc
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ── parseVars ───────────────────────────────────────────

func TestParseVars_Types(t *testing.T) {
	vars, err := parseVars([]string{"n=3", "f=1.5", "b=true", "s=hello", "eq=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if vars["n"] != int64(3) {
		t.Errorf("n = %#v", vars["n"])
	}
	if vars["f"] != 1.5 {
		t.Errorf("f = %#v", vars["f"])
	}
	if vars["b"] != true {
		t.Errorf("b = %#v", vars["b"])
	}
	if vars["s"] != "hello" {
		t.Errorf("s = %#v", vars["s"])
	}
	if vars["eq"] != "a=b" {
		t.Errorf("eq = %#v", vars["eq"])
	}
}

func TestParseVars_Rejects(t *testing.T) {
	for _, in := range []string{"novalue", "=x"} {
		if _, err := parseVars([]string{in}); err == nil {
			t.Errorf("parseVars(%q) should fail", in)
		}
	}
}

// ── commands ────────────────────────────────────────────

func TestValidate_OK(t *testing.T) {
	_, doc := writePipeline(t)
	out, err := execute(t, "validate", doc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "3 nodes, 2 edges") {
		t.Errorf("output = %q", out)
	}
}

func TestGraph_Text(t *testing.T) {
	_, doc := writePipeline(t)
	out, err := execute(t, "graph", doc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "src [csv] → keep") || !strings.Contains(out, "3. TARGET") {
		t.Errorf("output = %q", out)
	}
}

func TestRun_WritesTargetAndHistory(t *testing.T) {
	dir, doc := writePipeline(t)
	db := filepath.Join(dir, "history.db")

	out, err := execute(t, "--db", db, "run", doc)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"status": "COMPLETED"`) {
		t.Errorf("result = %s", out)
	}
	got, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "id,amount\n1,5\n3,12\n" {
		t.Errorf("out.csv = %q", got)
	}

	hist, err := execute(t, "--db", db, "history", "cli-copy")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(hist, "COMPLETED") {
		t.Errorf("history = %q", hist)
	}
}

func TestRun_FailureExitsNonZero(t *testing.T) {
	dir, doc := writePipeline(t)
	os.Remove(filepath.Join(dir, "in.csv"))

	_, err := execute(t, "--db", filepath.Join(dir, "history.db"), "run", doc)
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Errorf("err = %v", err)
	}
}

func TestSaveRunStoredDelete(t *testing.T) {
	dir, doc := writePipeline(t)
	db := filepath.Join(dir, "history.db")

	if _, err := execute(t, "--db", db, "save", doc); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--db", db, "run", "--stored", "cli-copy"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--db", db, "delete", "cli-copy"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--db", db, "run", "--stored", "cli-copy"); err == nil {
		t.Error("running a deleted pipeline should fail")
	}
}

func TestSave_RejectsBadSchedule(t *testing.T) {
	dir, doc := writePipeline(t)
	_, err := execute(t, "--db", filepath.Join(dir, "history.db"), "save", doc,
		"--trigger", "schedule", "--trigger-config", "not a cron")
	if err == nil {
		t.Error("expected an invalid schedule error")
	}
}

func TestPlugins_Table(t *testing.T) {
	out, err := execute(t, "plugins")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"csv", "mongodb", "http", "aggregate", "union"} {
		if !strings.Contains(out, want) {
			t.Errorf("plugins output missing %q:\n%s", want, out)
		}
	}
}
