package pipeline

import (
	"context"
	"strings"
	"time"

	"resonate/internal/db"
	"resonate/internal/errors"
	"resonate/internal/post"
)

// SubmitRequest is the ingress payload from the capture client. The
// payload is stored verbatim; no server-side re-extraction happens.
type SubmitRequest struct {
	SourceURL    string             `json:"source_url"`
	AuthorHandle string             `json:"author_handle,omitempty"`
	AuthorName   string             `json:"author_name,omitempty"`
	Body         string             `json:"body,omitempty"`
	URLs         []string           `json:"urls,omitempty"`
	MediaURLs    []string           `json:"media_urls,omitempty"`
	Context      []post.ContextItem `json:"context,omitempty"`
	Mode         string             `json:"mode,omitempty"`
}

// Ingest validates and persists a submission, returning the stored
// post. The pipeline run itself is the caller's choice: fire it
// asynchronously for the normal capture flow or run it inline.
func (pl *Pipeline) Ingest(req *SubmitRequest) (*post.Post, error) {
	if strings.TrimSpace(req.SourceURL) == "" {
		return nil, errors.NewInvalidRequest("source_url is required")
	}

	now := time.Now().UTC()
	p := &post.Post{
		ID:           post.NewID(),
		SourceURL:    req.SourceURL,
		AuthorHandle: req.AuthorHandle,
		AuthorName:   req.AuthorName,
		Body:         req.Body,
		URLs:         req.URLs,
		MediaURLs:    req.MediaURLs,
		Context:      req.Context,
		Mode:         post.ParseMode(req.Mode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.InsertPost(pl.DB, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Fire starts a pipeline run in the background. The run detaches from
// the caller's request context; completion is observed by polling.
func (pl *Pipeline) Fire(p *post.Post) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := pl.Run(ctx, p); err != nil {
			pl.Log.Error("background run failed", "post_id", p.ID, "error", err)
		}
	}()
}
