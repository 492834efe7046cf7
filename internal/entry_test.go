package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/bones/internal/testutil"
)

func testHandler(t *testing.T, cfg *Config) (*core, http.Handler) {
	t.Helper()
	c, err := newCore(cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	broker := newBroker(c)
	t.Cleanup(broker.Close)
	return c, newHTTPHandler(cfg, c, broker)
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(t.Context()); err == nil {
		t.Fatal("Run without config should fail")
	}
}

func TestHealthReady_ReportsIngestState(t *testing.T) {
	_, h := testHandler(t, NewDefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["ingest"] != "disabled" {
		t.Errorf("ingest = %q, want disabled", body["ingest"])
	}
}

func TestHealthReady_StreamConfigured(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Stream.Enabled = true
	cfg.Stream.BearerToken = "t"
	c, h := testHandler(t, cfg)
	if c.ingester == nil {
		t.Fatal("ingester not built")
	}

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// Not started yet, but readiness never depends on the stream.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ingest":"`+c.ingestState()+`"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRoutes_Mounted(t *testing.T) {
	_, h := testHandler(t, NewDefaultConfig())

	for _, tc := range []struct {
		path string
		want string
	}{
		{"/health/live", `"status":"ok"`},
		{"/api/vibe", `"stale":true`},
		{"/metrics", "bones_"},
		{"/", "Superposition"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", tc.path, w.Code)
			continue
		}
		if !strings.Contains(w.Body.String(), tc.want) {
			t.Errorf("%s body missing %q", tc.path, tc.want)
		}
	}
}

func TestWriteThroughAPI_RecordsMetric(t *testing.T) {
	_, h := testHandler(t, NewDefaultConfig())

	req := httptest.NewRequest(http.MethodPut, "/api/vibe", strings.NewReader(`{"classification":"positive"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `bones_store_writes_total{classification="positive",origin="manual"} 1`) {
		t.Errorf("metrics missing manual write:\n%s", w.Body.String())
	}
}

func TestNewCore_BadKeywordOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Classifier.Keywords = map[string][]string{"positive": {"  "}}
	if _, err := newCore(cfg, testutil.DiscardLogger()); err == nil {
		t.Fatal("blank keyword should be rejected")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// streamServer accepts only "Bearer good" and then holds the stream open.
func streamServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
}

func streamConfig(endpoint string) *Config {
	cfg := NewDefaultConfig()
	cfg.Stream.Enabled = true
	cfg.Stream.Endpoint = endpoint
	cfg.Stream.RulesEndpoint = ""
	return cfg
}

func TestRunIngest_RestartsAfterCredentialRotation(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "bearer")
	if err := os.WriteFile(path, []byte("bad"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := streamConfig(srv.URL)
	cfg.Stream.BearerTokenFile = path

	c, err := newCore(cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.runIngest(ctx, cfg, testutil.DiscardLogger()) }()

	waitFor(t, "auth failure", func() bool { return c.ingestState() == "failed" })

	// Rewrite until the watcher has picked it up; it may still be starting.
	waitFor(t, "restart with rotated token", func() bool {
		if c.ingestState() == "streaming" {
			return true
		}
		_ = os.WriteFile(path, []byte("good\n"), 0o600)
		return false
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runIngest = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runIngest did not stop")
	}
}

func TestRunIngest_AuthFailureWithoutFileStops(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	cfg := streamConfig(srv.URL)
	cfg.Stream.BearerToken = "bad"
	c, err := newCore(cfg, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.runIngest(context.Background(), cfg, testutil.DiscardLogger()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("auth failure should not fail the process: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runIngest kept running after auth failure")
	}
	if c.ingestState() != "failed" {
		t.Errorf("state = %s, want failed", c.ingestState())
	}
}
