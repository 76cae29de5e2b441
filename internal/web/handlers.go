package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"resonate/internal/db"
	"resonate/internal/errors"
	"resonate/internal/pipeline"
	"resonate/internal/post"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	pipeline *pipeline.Pipeline
	log      *slog.Logger
}

// HandleSubmit handles POST /api/posts. The default flow persists the
// post, fires the pipeline in the background, and returns 202; with
// ?wait=1 the run executes inline and the full status is returned.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewInvalidRequest("malformed request body"))
		return
	}

	p, err := h.pipeline.Ingest(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("wait") == "1" {
		status, err := h.pipeline.Run(r.Context(), p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	h.pipeline.Fire(p)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"post_id":   p.ID,
		"processed": false,
	})
}

// HandleGetPost handles GET /api/posts/{id}.
func (h *Handlers) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := db.GetPost(h.pipeline.DB, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleResult handles GET /api/posts/{id}/result, the polling
// endpoint. Until the run completes it reports processed=false; after
// completion it carries the evaluation, the draft (null when the run
// skipped drafting, with the skip reason alongside), and the resolution
// counts.
func (h *Handlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	p, err := db.GetPost(h.pipeline.DB, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	result := map[string]any{
		"ok":        true,
		"post_id":   p.ID,
		"processed": p.Processed,
	}
	if !p.Processed {
		writeJSON(w, http.StatusOK, result)
		return
	}

	if eval, err := db.GetEvaluationByPost(h.pipeline.DB, p.ID); err == nil {
		result["evaluation"] = eval
	}
	result["draft"] = nil
	draft, err := db.GetDraftByPost(h.pipeline.DB, p.ID)
	if err == nil {
		result["draft"] = draft
		result["skipped"] = false
	} else if errors.Is(err, errors.ErrNotFound) {
		result["skipped"] = true
		if p.Fetched != nil && p.Fetched.SkipReason != "" {
			result["skip_reason"] = p.Fetched.SkipReason
		}
	} else {
		writeError(w, err)
		return
	}
	result["counts"] = resultCounts(p)
	if p.Fetched != nil {
		result["fetched"] = p.Fetched
	}
	writeJSON(w, http.StatusOK, result)
}

// resultCounts rebuilds run counts from what was persisted: the fetched
// snapshot for resolved content, the stored context items for the rest.
func resultCounts(p *post.Post) pipeline.Counts {
	var c pipeline.Counts
	if p.Fetched != nil {
		c.Articles = len(p.Fetched.Articles)
		c.Images = p.Fetched.ImageCount
	}
	for _, item := range p.Context {
		switch item.Kind {
		case post.KindConversation:
			c.Thread++
		case post.KindQuotedPost:
			c.Quoted++
		}
	}
	return c
}

// HandleListDrafts handles GET /api/drafts with optional status,
// post_id, limit, and offset query parameters.
func (h *Handlers) HandleListDrafts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !post.ValidStatus(status) {
		writeError(w, errors.NewInvalidRequest("invalid draft status: "+status))
		return
	}

	drafts, err := db.ListDrafts(h.pipeline.DB, db.ListDraftsOptions{
		Status: status,
		PostID: r.URL.Query().Get("post_id"),
		Limit:  parseIntParam(r, "limit", 50),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if drafts == nil {
		drafts = []*post.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts})
}

// HandleGetDraft handles GET /api/drafts/{id}.
func (h *Handlers) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := db.GetDraft(h.pipeline.DB, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleUpdateDraft handles PATCH /api/drafts/{id}, the review
// transition endpoint.
func (h *Handlers) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.NewInvalidRequest("malformed request body"))
		return
	}

	id := r.PathValue("id")
	if err := db.UpdateDraftStatus(h.pipeline.DB, id, body.Status); err != nil {
		writeError(w, err)
		return
	}
	d, err := db.GetDraft(h.pipeline.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.DB.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if pErr, ok := err.(*errors.PipelineError); ok {
		writeJSON(w, pErr.Status, map[string]any{
			"error":   pErr.Code,
			"message": pErr.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   errors.ErrInternal,
		"message": err.Error(),
	})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
