package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

// ── HTTP API Connector ─────────────────────────────────────
// Fetches a JSON document from a REST endpoint and reads the array found at
// dataPath. Read-only.

const defaultHTTPTimeout = 30 * time.Second

// HTTP is the REST API source connector.
type HTTP struct {
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

func (HTTP) Type() string        { return "http" }
func (HTTP) DisplayName() string { return "HTTP API" }
func (HTTP) Description() string { return "Read records from a JSON REST endpoint" }
func (HTTP) SupportsRead() bool  { return true }
func (HTTP) SupportsWrite() bool { return false }

func (HTTP) ConfigSchema() etl.ConfigSchema {
	return etl.ConfigSchema{Fields: []etl.ConfigField{
		{Name: "url", Label: "URL", Type: etl.FieldString, Required: true,
			Description: "Full URL, e.g. https://api.github.com/users/me/repos",
			Validation:  &etl.FieldValidation{Pattern: `^https?://`, Message: "url must start with http:// or https://"}},
		{Name: "method", Label: "Method", Type: etl.FieldSelect, DefaultValue: http.MethodGet,
			Options: []string{http.MethodGet, http.MethodPost}},
		{Name: "headers", Label: "Headers", Type: etl.FieldJSON,
			Description: `JSON object of headers, e.g. {"Authorization": "Bearer xxx"}`},
		{Name: "body", Label: "Body", Type: etl.FieldTextarea, Description: "Request body for POST"},
		{Name: "dataPath", Label: "Data Path", Type: etl.FieldString,
			Description: "Path to the record array in the response, e.g. $.data.items"},
		{Name: "timeoutSeconds", Label: "Timeout (s)", Type: etl.FieldInteger, DefaultValue: 30},
	}}
}

func (h HTTP) Validate(cfg etl.Config) error {
	if err := h.ConfigSchema().Validate(h.Type(), cfg); err != nil {
		return err
	}
	if _, err := requestHeaders(cfg); err != nil {
		return etl.ConfigErrorf(h.Type(), "headers: %v", err)
	}
	return nil
}

// TestConnection sends a HEAD request. Servers that reject HEAD still prove
// reachability, so only transport failures and 5xx count as errors.
func (h HTTP) TestConnection(ctx context.Context, cfg etl.Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.String("url", ""), nil)
	if err != nil {
		return etl.ConfigErrorf(h.Type(), "url: %v", err)
	}
	resp, err := h.client(cfg).Do(req)
	if err != nil {
		return etl.ConnectionError("http test", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return etl.ConnectionError("http test", fmt.Errorf("server answered %s", resp.Status))
	}
	return nil
}

func (h HTTP) CreateReader(cfg etl.Config) (etl.Reader, error) {
	headers, err := requestHeaders(cfg)
	if err != nil {
		return nil, etl.ConfigErrorf(h.Type(), "headers: %v", err)
	}
	return &httpReader{
		client:  h.client(cfg),
		url:     cfg.String("url", ""),
		method:  strings.ToUpper(cfg.String("method", http.MethodGet)),
		headers: headers,
		body:    cfg.String("body", ""),
		path:    jsonPathParts(cfg.String("dataPath", "")),
	}, nil
}

func (h HTTP) CreateWriter(etl.Config) (etl.Writer, error) {
	return nil, &etl.Error{Kind: etl.ErrConfig, Op: h.Type(), Msg: "http connector is read-only", Err: etl.ErrUnsupported}
}

func (h HTTP) client(cfg etl.Config) *http.Client {
	if h.Client != nil {
		return h.Client
	}
	timeout := defaultHTTPTimeout
	if s := cfg.Int("timeoutSeconds", 0); s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// requestHeaders accepts headers as an object or as a JSON-encoded string.
func requestHeaders(cfg etl.Config) (http.Header, error) {
	out := http.Header{}
	switch v := cfg["headers"].(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			out.Set(k, fmt.Sprint(val))
		}
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		for k, val := range m {
			out.Set(k, val)
		}
	default:
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return out, nil
}

// ── Reader ──

type httpReader struct {
	client  *http.Client
	url     string
	method  string
	headers http.Header
	body    string
	path    []string
	records []*etl.Record
	schema  *etl.Schema
	loaded  bool
}

func (r *httpReader) Open(ctx context.Context) error {
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return etl.ConnectionError("http request", err)
	}
	req.Header = r.headers.Clone()
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return etl.ConnectionError("http request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return etl.ConnectionError("http request", fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(snippet)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	root, err := decodeOrdered(dec)
	if err != nil {
		return etl.ConnectionError("parse response", err)
	}

	switch v := root.(type) {
	case []any:
		r.records, err = recordsOf(v)
	case *etl.Record:
		switch found := extractPath(v, r.path).(type) {
		case []any:
			r.records, err = recordsOf(found)
		case *etl.Record:
			r.records = []*etl.Record{flatten(found)}
		case nil:
			if len(r.path) > 0 {
				err = fmt.Errorf("dataPath %q not found in response", strings.Join(r.path, "."))
			} else {
				r.records = []*etl.Record{flatten(v)}
			}
		default:
			err = fmt.Errorf("dataPath %q holds %T, not an array", strings.Join(r.path, "."), found)
		}
	default:
		err = errors.New("response must be a JSON array or object")
	}
	if err != nil {
		return etl.ConnectionError("parse response", err)
	}
	r.loaded = true
	slog.Info("http records fetched", "url", redactURL(r.url), "count", len(r.records))
	return nil
}

// redactURL drops credentials and the query string, which often carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func (r *httpReader) Schema(context.Context) (*etl.Schema, error) {
	if r.schema == nil {
		if len(r.records) == 0 {
			return &etl.Schema{}, nil
		}
		r.schema = etl.SchemaFromRecord(r.records[0])
	}
	return r.schema, nil
}

func (r *httpReader) Read(context.Context) (etl.Iterator, error) {
	if !r.loaded {
		return nil, etl.ConnectionError("read http", errors.New("reader is not open"))
	}
	return etl.SliceIterator(r.records), nil
}

func (r *httpReader) EstimateCount(context.Context) int64 {
	if !r.loaded {
		return -1
	}
	return int64(len(r.records))
}

func (r *httpReader) Close() error {
	r.records = nil
	return nil
}
