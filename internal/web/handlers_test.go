package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"resonate/internal/config"
	"resonate/internal/db"
	"resonate/internal/logging"
	"resonate/internal/pipeline"
	"resonate/internal/reason"
	"resonate/internal/resolve"
)

func testServer(t *testing.T) *httptest.Server {
	return testServerWithDraft(t, `{"draft":"a reply","tone":"warm"}`)
}

func testServerWithDraft(t *testing.T, draftReply string) *httptest.Server {
	t.Helper()

	var calls atomic.Int32
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := `{"quality_score":0.8,"intention":"creative","resonance_potential":0.7,"reasoning":"good"}`
		if calls.Add(1)%2 == 0 {
			reply = draftReply
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

	srv := NewServer(pl, "", "127.0.0.1", 0, log)
	api := httptest.NewServer(srv.Handler)
	t.Cleanup(api.Close)
	return api
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func TestSubmitMissingSourceURL(t *testing.T) {
	api := testServer(t)
	resp, body := postJSON(t, api.URL+"/api/posts", `{"body":"no url"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body["error"] != "INVALID_REQUEST" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	api := testServer(t)
	resp, _ := postJSON(t, api.URL+"/api/posts", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSubmitWaitReturnsFullStatus(t *testing.T) {
	api := testServer(t)
	resp, body := postJSON(t, api.URL+"/api/posts?wait=1",
		`{"source_url":"https://x.com/u/status/1","body":"hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["ok"] != true || body["processed"] != true {
		t.Errorf("body = %v", body)
	}
	if body["evaluation"] == nil {
		t.Error("evaluation missing")
	}
	draft, ok := body["draft"].(map[string]any)
	if !ok || draft["text"] != "a reply" {
		t.Errorf("draft = %v", body["draft"])
	}
}

func TestSubmitAsyncAndPoll(t *testing.T) {
	api := testServer(t)
	resp, body := postJSON(t, api.URL+"/api/posts",
		`{"source_url":"https://x.com/u/status/2","body":"hello"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	postID, _ := body["post_id"].(string)
	if postID == "" {
		t.Fatalf("post_id missing: %v", body)
	}

	deadline := time.After(5 * time.Second)
	for {
		r, err := http.Get(api.URL + "/api/posts/" + postID + "/result")
		if err != nil {
			t.Fatal(err)
		}
		result := decodeBody(t, r)
		if result["processed"] == true {
			if result["skipped"] != false {
				t.Errorf("skipped = %v", result["skipped"])
			}
			if result["draft"] == nil {
				t.Error("draft missing after completion")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("poll never saw processed=true")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestResultAsyncSkipCarriesReason(t *testing.T) {
	api := testServerWithDraft(t, `{"skip":true,"reason":"spam"}`)
	resp, body := postJSON(t, api.URL+"/api/posts",
		`{"source_url":"https://x.com/u/status/7","body":"hello","context":[
			{"kind":"conversation","author":"@a","text":"earlier post"},
			{"kind":"quoted_tweet","author":"@q","text":"quoted words"}]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	postID, _ := body["post_id"].(string)

	deadline := time.After(5 * time.Second)
	for {
		r, err := http.Get(api.URL + "/api/posts/" + postID + "/result")
		if err != nil {
			t.Fatal(err)
		}
		result := decodeBody(t, r)
		if result["processed"] == true {
			if result["ok"] != true {
				t.Errorf("ok = %v", result["ok"])
			}
			if result["skipped"] != true {
				t.Errorf("skipped = %v", result["skipped"])
			}
			if result["skip_reason"] != "spam" {
				t.Errorf("skip_reason = %v", result["skip_reason"])
			}
			if draft, present := result["draft"]; !present || draft != nil {
				t.Errorf("draft = %v, want explicit null", draft)
			}
			counts, ok := result["counts"].(map[string]any)
			if !ok {
				t.Fatalf("counts missing: %v", result)
			}
			if counts["thread"] != float64(1) || counts["quoted"] != float64(1) {
				t.Errorf("counts = %v", counts)
			}
			if counts["articles"] != float64(0) || counts["images"] != float64(0) {
				t.Errorf("counts = %v", counts)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("poll never saw processed=true")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestResultUnknownPost(t *testing.T) {
	api := testServer(t)
	resp, err := http.Get(api.URL + "/api/posts/01UNKNOWN/result")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestDraftReviewFlow(t *testing.T) {
	api := testServer(t)
	_, body := postJSON(t, api.URL+"/api/posts?wait=1",
		`{"source_url":"https://x.com/u/status/3","body":"hello"}`)
	draft := body["draft"].(map[string]any)
	draftID := draft["id"].(string)

	// List pending drafts.
	resp, err := http.Get(api.URL + "/api/drafts?status=pending")
	if err != nil {
		t.Fatal(err)
	}
	listed := decodeBody(t, resp)
	drafts, _ := listed["drafts"].([]any)
	if len(drafts) != 1 {
		t.Errorf("pending drafts = %d", len(drafts))
	}

	// Approve it.
	req, _ := http.NewRequest(http.MethodPatch, api.URL+"/api/drafts/"+draftID,
		strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	patchResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	updated := decodeBody(t, patchResp)
	if updated["status"] != "approved" {
		t.Errorf("status = %v", updated["status"])
	}
}

func TestDraftInvalidStatusRejected(t *testing.T) {
	api := testServer(t)
	req, _ := http.NewRequest(http.MethodPatch, api.URL+"/api/drafts/01X",
		strings.NewReader(`{"status":"bogus"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestListDraftsInvalidStatusFilter(t *testing.T) {
	api := testServer(t)
	resp, err := http.Get(api.URL + "/api/drafts?status=whatever")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	api := testServer(t)
	resp, err := http.Get(api.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Errorf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestSecurityHeaders(t *testing.T) {
	api := testServer(t)
	resp, err := http.Get(api.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff header missing")
	}
}
