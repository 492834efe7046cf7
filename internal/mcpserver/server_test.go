package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/testutil"
	"github.com/starford/bones/internal/vibestore"
)

func testServer(t *testing.T) (*Server, *vibestore.Store) {
	t.Helper()
	zone := testutil.Zone(t, "America/New_York")
	now := time.Date(2022, 3, 14, 12, 0, 0, 0, zone)
	store, svc, _ := testutil.TestService(t, now, zone)
	return New(svc, "test"), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_vibe":
		result, err = srv.getVibe(ctx, req)
	case "set_vibe":
		result, err = srv.setVibe(ctx, req)
	case "classify_text":
		result, err = srv.classifyText(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetVibeStale(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_vibe", map[string]interface{}{})
	var view queryview.Result
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatal(err)
	}
	if !view.Stale {
		t.Errorf("fresh store should read stale, got %+v", view)
	}
}

func TestSetThenGetVibe(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "set_vibe", map[string]interface{}{"classification": "positive"})
	if r.IsError {
		t.Fatalf("set_vibe failed: %s", resultText(r))
	}
	if store.Read().Classification != models.Positive {
		t.Errorf("store = %v", store.Read().Classification)
	}

	r = callTool(t, srv, "get_vibe", map[string]interface{}{})
	var view queryview.Result
	_ = json.Unmarshal([]byte(resultText(r)), &view)
	if view.Label != "Bones Day" || view.Stale {
		t.Errorf("view = %+v", view)
	}
	if view.ObservedAtLocal != "Monday, March 14 at 12:00 PM EDT" {
		t.Errorf("observed = %q", view.ObservedAtLocal)
	}
}

func TestSetVibeInvalid(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "set_vibe", map[string]interface{}{"classification": "perhaps"})
	if !r.IsError {
		t.Error("expected error for unknown classification")
	}
	if store.Read() != models.SentinelRecord() {
		t.Error("store changed on invalid input")
	}

	r = callTool(t, srv, "set_vibe", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing classification")
	}
}

func TestClassifyTextDryRun(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "classify_text", map[string]interface{}{"text": "It's a NO BONES day"})
	if got := resultText(r); got != "negative (No Bones Day)" {
		t.Errorf("result = %q", got)
	}
	if store.Read() != models.SentinelRecord() {
		t.Error("dry run wrote to the store")
	}
}

func TestClassifyTextStore(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "classify_text", map[string]interface{}{"text": "bones day!", "store": true})
	if got := resultText(r); got != "stored: positive (Bones Day)" {
		t.Errorf("result = %q", got)
	}
	if store.Read().Classification != models.Positive {
		t.Error("store not updated")
	}
}

func TestClassificationsResource(t *testing.T) {
	srv, _ := testServer(t)

	contents, err := srv.readClassificationsResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text
	for _, c := range models.Classifications {
		if !strings.Contains(text, "`"+c.String()+"`") {
			t.Errorf("table missing %s", c)
		}
	}
}
