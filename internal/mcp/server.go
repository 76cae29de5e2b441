// Package mcp exposes the pipeline to MCP clients over stdio:
// submitting posts, polling results, and listing drafts.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"resonate/internal/pipeline"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"post_submit": {
		def:     submitToolDef(),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSubmit },
	},
	"post_result": {
		def:     resultToolDef(),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResult },
	},
	"drafts_list": {
		def:     draftsListToolDef(),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftsList },
	},
}

func submitToolDef() mcp.Tool {
	return mcp.NewTool("post_submit",
		mcp.WithDescription("Submit a captured post for evaluation and reply drafting. Returns the post id; poll post_result for the outcome, or pass wait=true to run inline."),
		mcp.WithString("source_url", mcp.Required(), mcp.Description("URL of the captured post")),
		mcp.WithString("author_handle", mcp.Description("Author handle, e.g. @name")),
		mcp.WithString("author_name", mcp.Description("Author display name")),
		mcp.WithString("body", mcp.Description("Post body text")),
		mcp.WithArray("urls",
			mcp.Description("URLs embedded in the post, resolved as linked articles"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("media_urls",
			mcp.Description("Image attachment URLs, fetched and passed to the reasoning service"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("context",
			mcp.Description("Surrounding context items: conversation posts, quoted posts, article cards"),
			mcp.Items(map[string]any{"type": "object"})),
		mcp.WithString("mode", mcp.Description("Reply mode: short (default) or long")),
		mcp.WithBoolean("wait", mcp.Description("Run the pipeline inline and return the full status")),
	)
}

func resultToolDef() mcp.Tool {
	return mcp.NewTool("post_result",
		mcp.WithDescription("Fetch the processing result for a submitted post: processed flag, evaluation, and draft or skip reason."),
		mcp.WithString("post_id", mcp.Required(), mcp.Description("Post id returned by post_submit")),
	)
}

func draftsListToolDef() mcp.Tool {
	return mcp.NewTool("drafts_list",
		mcp.WithDescription("List generated reply drafts, optionally filtered by review status."),
		mcp.WithString("status", mcp.Description("Filter: pending, approved, rejected, edited, or posted")),
		mcp.WithNumber("limit", mcp.Description("Maximum drafts to return (default 50)")),
	)
}

// NewServer creates an MCP server with all tools registered.
func NewServer(pl *pipeline.Pipeline, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"resonate",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(pl)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run starts the MCP server using stdio transport.
func Run(pl *pipeline.Pipeline, version string) error {
	return server.ServeStdio(NewServer(pl, version))
}
