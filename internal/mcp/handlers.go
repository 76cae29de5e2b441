package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"resonate/internal/db"
	"resonate/internal/errors"
	"resonate/internal/pipeline"
	"resonate/internal/post"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	pipeline *pipeline.Pipeline
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(pl *pipeline.Pipeline) *Handlers {
	return &Handlers{pipeline: pl}
}

// SubmitArgs are the arguments for post_submit.
type SubmitArgs struct {
	SourceURL    string             `json:"source_url"`
	AuthorHandle string             `json:"author_handle,omitempty"`
	AuthorName   string             `json:"author_name,omitempty"`
	Body         string             `json:"body,omitempty"`
	URLs         []string           `json:"urls,omitempty"`
	MediaURLs    []string           `json:"media_urls,omitempty"`
	Context      []post.ContextItem `json:"context,omitempty"`
	Mode         string             `json:"mode,omitempty"`
	Wait         bool               `json:"wait,omitempty"`
}

// ResultArgs are the arguments for post_result.
type ResultArgs struct {
	PostID string `json:"post_id"`
}

// DraftsListArgs are the arguments for drafts_list.
type DraftsListArgs struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// HandleSubmit handles the post_submit tool call.
func (h *Handlers) HandleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[SubmitArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.pipeline.Ingest(&pipeline.SubmitRequest{
		SourceURL:    args.SourceURL,
		AuthorHandle: args.AuthorHandle,
		AuthorName:   args.AuthorName,
		Body:         args.Body,
		URLs:         args.URLs,
		MediaURLs:    args.MediaURLs,
		Context:      args.Context,
		Mode:         args.Mode,
	})
	if err != nil {
		return errorResult(err), nil
	}

	if args.Wait {
		status, err := h.pipeline.Run(ctx, p)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(status)
	}

	h.pipeline.Fire(p)
	return successResult(map[string]any{"post_id": p.ID, "processed": false})
}

// HandleResult handles the post_result tool call.
func (h *Handlers) HandleResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[ResultArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if args.PostID == "" {
		return errorResult(errors.NewInvalidRequest("post_id is required")), nil
	}

	p, err := db.GetPost(h.pipeline.DB, args.PostID)
	if err != nil {
		return errorResult(err), nil
	}

	result := map[string]any{
		"post_id":   p.ID,
		"processed": p.Processed,
	}
	if p.Processed {
		if eval, err := db.GetEvaluationByPost(h.pipeline.DB, p.ID); err == nil {
			result["evaluation"] = eval
		}
		if draft, err := db.GetDraftByPost(h.pipeline.DB, p.ID); err == nil {
			result["draft"] = draft
			result["skipped"] = false
		} else {
			result["skipped"] = true
			if p.Fetched != nil && p.Fetched.SkipReason != "" {
				result["skip_reason"] = p.Fetched.SkipReason
			}
		}
	}
	return successResult(result)
}

// HandleDraftsList handles the drafts_list tool call.
func (h *Handlers) HandleDraftsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[DraftsListArgs](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if args.Status != "" && !post.ValidStatus(args.Status) {
		return errorResult(errors.NewInvalidRequest("invalid draft status: " + args.Status)), nil
	}

	drafts, err := db.ListDrafts(h.pipeline.DB, db.ListDraftsOptions{
		Status: args.Status,
		Limit:  args.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if drafts == nil {
		drafts = []*post.Draft{}
	}
	return successResult(map[string]any{"drafts": drafts})
}

// decode unmarshals MCP request arguments into a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	args := req.GetArguments()
	b, err := json.Marshal(args)
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr, ok := err.(*errors.PipelineError); ok {
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": pErr.Message,
			"status":  pErr.Status,
		}
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
