package connectors_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
	"github.com/frankawp/data-pipeline-builder/internal/etl/connectors"
)

// ─────────────────────────────────────────────────────────────
// HTTP
// ─────────────────────────────────────────────────────────────

func jsonServer(t *testing.T, body string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_ReadDataPath(t *testing.T) {
	srv := jsonServer(t, `{"data": {"items": [{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]}}`, func(r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer t0k" {
			t.Errorf("Authorization = %q", got)
		}
	})

	cfg := etl.Config{
		"url":      srv.URL,
		"dataPath": "$.data.items",
		"headers":  map[string]any{"Authorization": "Bearer t0k"},
	}
	schema, got := readRecords(t, connectors.HTTP{}, cfg)
	if names := strings.Join(schema.FieldNames(), ","); names != "id,name" {
		t.Errorf("schema fields = %s", names)
	}
	if len(got) != 2 || got[1].Value("name") != "b" {
		t.Fatalf("records = %v", got)
	}
}

func TestHTTP_HeadersAsJSONString(t *testing.T) {
	srv := jsonServer(t, `[{"a": 1}]`, func(r *http.Request) {
		if r.Header.Get("X-Key") != "k" {
			t.Errorf("X-Key = %q", r.Header.Get("X-Key"))
		}
	})
	_, got := readRecords(t, connectors.HTTP{}, etl.Config{"url": srv.URL, "headers": `{"X-Key": "k"}`})
	if len(got) != 1 || got[0].Value("a") != int64(1) {
		t.Errorf("records = %v", got)
	}
}

func TestHTTP_PostBody(t *testing.T) {
	srv := jsonServer(t, `{"ok": true}`, func(r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
	})
	_, got := readRecords(t, connectors.HTTP{}, etl.Config{"url": srv.URL, "method": "POST", "body": `{"q": 1}`})
	if len(got) != 1 || got[0].Value("ok") != true {
		t.Errorf("records = %v", got)
	}
}

func TestHTTP_ErrorStatusIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	r, err := connectors.HTTP{}.CreateReader(etl.Config{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	err = r.Open(t.Context())
	if !errors.Is(err, etl.ErrConnection) || !strings.Contains(err.Error(), "403") {
		t.Errorf("Open err = %v", err)
	}
}

func TestHTTP_MissingDataPath(t *testing.T) {
	srv := jsonServer(t, `{"total": 0}`, nil)
	r, _ := connectors.HTTP{}.CreateReader(etl.Config{"url": srv.URL, "dataPath": "$.items"})
	if err := r.Open(t.Context()); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Open err = %v", err)
	}
}

func TestHTTP_ValidateAndReadOnly(t *testing.T) {
	h := connectors.HTTP{}
	if err := h.Validate(etl.Config{"url": "ftp://x"}); !errors.Is(err, etl.ErrConfig) {
		t.Errorf("ftp url err = %v", err)
	}
	if err := h.Validate(etl.Config{"url": "https://x", "headers": "{not json"}); !errors.Is(err, etl.ErrConfig) {
		t.Errorf("bad headers err = %v", err)
	}
	if _, err := h.CreateWriter(etl.Config{}); !errors.Is(err, etl.ErrUnsupported) {
		t.Errorf("CreateWriter err = %v", err)
	}
	if h.SupportsWrite() {
		t.Error("http must be read-only")
	}
}

func TestHTTP_TestConnection(t *testing.T) {
	srv := jsonServer(t, `[]`, nil)
	if err := (connectors.HTTP{}).TestConnection(t.Context(), etl.Config{"url": srv.URL}); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
	if err := (connectors.HTTP{}).TestConnection(t.Context(), etl.Config{"url": "http://127.0.0.1:1"}); !errors.Is(err, etl.ErrConnection) {
		t.Errorf("closed port err = %v", err)
	}
}
