package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"resonate/internal/config"
	"resonate/internal/db"
	"resonate/internal/logging"
	"resonate/internal/pipeline"
	"resonate/internal/reason"
	"resonate/internal/resolve"
)

// testHandlers builds Handlers over a pipeline backed by a fake reasoning
// service that returns an evaluation on odd calls and a draft on even calls.
func testHandlers(t *testing.T) *Handlers {
	t.Helper()

	var calls atomic.Int32
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := `{"quality_score":0.8,"intention":"creative","resonance_potential":0.7,"reasoning":"good"}`
		if calls.Add(1)%2 == 0 {
			reply = `{"draft":"a reply","tone":"warm"}`
		}
		encoded, _ := json.Marshal(reply)
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%s}]},"finishReason":"STOP"}]}`, encoded)
	}))
	t.Cleanup(llm.Close)

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	log := logging.NewWithWriter(io.Discard, "error")
	pl := &pipeline.Pipeline{
		DB:       database,
		Resolver: resolve.New(nil, log, "resonate-test/1.0"),
		Client: reason.NewClient(config.ReasoningConfig{
			Endpoint: llm.URL, Model: "m", APIKey: "k", RequestsPerSecond: 1000,
		}, log),
		Templates: reason.NewCache(nil),
		Log:       log,
	}
	return NewHandlers(pl)
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultPayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal result payload: %v", err)
	}
	return payload
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	payload := resultPayload(t, result)
	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	if errorObj["code"] != expectedCode {
		t.Errorf("error code = %v, want %s", errorObj["code"], expectedCode)
	}
}

func TestHandleSubmit(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "submit valid post",
			args: map[string]any{
				"source_url": "https://x.com/u/status/1",
				"body":       "hello",
				"wait":       true,
			},
			wantError: false,
		},
		{
			name:      "submit without source_url",
			args:      map[string]any{"body": "no url"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "submit with invalid args type",
			args: map[string]any{
				"source_url": "https://x.com/u/status/2",
				"urls":       "not-a-list",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleSubmit(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Error("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", resultPayload(t, result))
			}
		})
	}
}

func TestHandleSubmitWaitReturnsStatus(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	result, err := h.HandleSubmit(ctx, makeRequest(map[string]any{
		"source_url": "https://x.com/u/status/1",
		"body":       "an observation about batteries",
		"wait":       true,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("submit failed: %v", resultPayload(t, result))
	}

	payload := resultPayload(t, result)
	if payload["processed"] != true {
		t.Errorf("processed = %v", payload["processed"])
	}
	if payload["evaluation"] == nil {
		t.Error("evaluation missing from status")
	}
	draft, ok := payload["draft"].(map[string]any)
	if !ok {
		t.Fatalf("draft missing from status: %v", payload)
	}
	if draft["text"] != "a reply" {
		t.Errorf("draft text = %v", draft["text"])
	}

	// The post is now queryable through post_result.
	postID, _ := payload["post_id"].(string)
	result, err = h.HandleResult(ctx, makeRequest(map[string]any{"post_id": postID}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("result lookup failed: %v", resultPayload(t, result))
	}
	payload = resultPayload(t, result)
	if payload["processed"] != true || payload["skipped"] != false {
		t.Errorf("result payload = %v", payload)
	}
}

func TestHandleResult(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		errorCode string
	}{
		{
			name:      "missing post_id",
			args:      map[string]any{},
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown post_id",
			args:      map[string]any{"post_id": "01JUNKJUNKJUNKJUNKJUNKJUNK"},
			errorCode: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleResult(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result, got success")
			}
			assertErrorCode(t, result, tt.errorCode)
		})
	}
}

func TestHandleDraftsList(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	// Empty database lists no drafts.
	result, err := h.HandleDraftsList(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("list failed: %v", resultPayload(t, result))
	}
	payload := resultPayload(t, result)
	drafts, ok := payload["drafts"].([]any)
	if !ok {
		t.Fatalf("drafts missing from payload: %v", payload)
	}
	if len(drafts) != 0 {
		t.Errorf("drafts = %d, want 0", len(drafts))
	}

	// Invalid status filter is rejected.
	result, err = h.HandleDraftsList(ctx, makeRequest(map[string]any{"status": "bogus"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for invalid status")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")

	// A processed post leaves a pending draft behind.
	submit, err := h.HandleSubmit(ctx, makeRequest(map[string]any{
		"source_url": "https://x.com/u/status/1",
		"body":       "hello",
		"wait":       true,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if submit.IsError {
		t.Fatalf("submit failed: %v", resultPayload(t, submit))
	}

	result, err = h.HandleDraftsList(ctx, makeRequest(map[string]any{"status": "pending"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	payload = resultPayload(t, result)
	drafts, _ = payload["drafts"].([]any)
	if len(drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(drafts))
	}
}

func TestSubmitToolSchemaDeclaresResolutionFields(t *testing.T) {
	def := submitToolDef()
	fields := []string{
		"source_url", "author_handle", "author_name", "body",
		"urls", "media_urls", "context", "mode", "wait",
	}
	for _, name := range fields {
		if _, ok := def.InputSchema.Properties[name]; !ok {
			t.Errorf("post_submit schema missing %q", name)
		}
	}
}

func TestToolRegistry(t *testing.T) {
	for _, name := range []string{"post_submit", "post_result", "drafts_list"} {
		entry, ok := toolRegistry[name]
		if !ok {
			t.Errorf("tool %s not registered", name)
			continue
		}
		if entry.def.Name != name {
			t.Errorf("tool %s definition named %s", name, entry.def.Name)
		}
		if entry.handler == nil {
			t.Errorf("tool %s has no handler factory", name)
		}
	}
}
