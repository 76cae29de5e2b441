// Package pipeline orchestrates one processing run per post: resolve
// external content, call the reasoning service for an evaluation and
// then a draft, recover structured records from both replies, and
// persist the results.
package pipeline

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"resonate/internal/db"
	"resonate/internal/interpret"
	"resonate/internal/metrics"
	"resonate/internal/post"
	"resonate/internal/reason"
	"resonate/internal/resolve"
)

// Generator is the reasoning-service surface the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, req reason.Request, pass string) (string, error)
}

// Pipeline runs posts through resolution, reasoning, and persistence.
type Pipeline struct {
	DB        *sql.DB
	Resolver  *resolve.Resolver
	Client    Generator
	Templates *reason.Cache
	Log       *slog.Logger
}

// Counts summarizes what one run processed.
type Counts struct {
	Articles int `json:"articles"`
	Images   int `json:"images"`
	Quoted   int `json:"quoted"`
	Thread   int `json:"thread"`
}

// Status is the outcome of a completed run.
type Status struct {
	OK         bool             `json:"ok"`
	PostID     string           `json:"post_id"`
	Processed  bool             `json:"processed"`
	Evaluation *post.Evaluation `json:"evaluation,omitempty"`
	Draft      *post.Draft      `json:"draft,omitempty"`
	Skipped    bool             `json:"skipped"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Counts     Counts           `json:"counts"`
}

// Run executes the full pipeline for one post. Resolution and
// interpretation failures degrade; reasoning-service failures are fatal
// and abort the run with whatever was already persisted retained.
func (pl *Pipeline) Run(ctx context.Context, p *post.Post) (*Status, error) {
	start := time.Now()
	metrics.PipelineRuns.Inc()
	defer metrics.ObservePipelineDuration(start)

	status, err := pl.run(ctx, p)
	if err != nil {
		metrics.PipelineFailures.Inc()
		pl.Log.Error("pipeline run failed", "post_id", p.ID, "error", err)
		return nil, err
	}
	return status, nil
}

func (pl *Pipeline) run(ctx context.Context, p *post.Post) (*Status, error) {
	buckets := splitContext(p.Context)
	resolved := pl.Resolver.Resolve(ctx, candidateURLs(p), p.MediaURLs)

	pl.Log.Info("content resolved",
		"post_id", p.ID,
		"articles", len(resolved.Articles),
		"articles_dropped", resolved.ArticlesDropped,
		"images", len(resolved.Images),
		"images_dropped", resolved.ImagesDropped,
	)

	blobs := make([]reason.Blob, 0, len(resolved.Images))
	imageURLs := make([]string, 0, len(resolved.Images))
	for _, img := range resolved.Images {
		blobs = append(blobs, reason.Blob{MIMEType: img.MediaType, Data: img.Data})
		if img.StoredURL != "" {
			imageURLs = append(imageURLs, img.StoredURL)
		}
	}

	eval, err := pl.evaluate(ctx, p, buckets, resolved.Articles, blobs)
	if err != nil {
		return nil, err
	}
	if err := db.InsertEvaluation(pl.DB, eval); err != nil {
		pl.Log.Error("evaluation insert failed", "post_id", p.ID, "error", err)
	}

	draft, skipReason, err := pl.draft(ctx, p, buckets, resolved.Articles, blobs, eval)
	if err != nil {
		return nil, err
	}
	if draft != nil {
		if err := db.InsertDraft(pl.DB, draft); err != nil {
			pl.Log.Error("draft insert failed", "post_id", p.ID, "error", err)
		}
	}

	snapshot := &post.FetchedContent{
		ImageCount: len(resolved.Images),
		ImageURLs:  imageURLs,
		SkipReason: skipReason,
		FetchedAt:  time.Now().UTC(),
	}
	for _, a := range resolved.Articles {
		snapshot.Articles = append(snapshot.Articles, post.ArticleSnapshot{
			URL:         a.URL,
			ResolvedURL: a.ResolvedURL,
			Title:       a.Title,
			Text:        a.Text,
			TextLength:  len([]rune(a.Text)),
		})
	}
	if err := db.MarkProcessed(pl.DB, p.ID, snapshot); err != nil {
		pl.Log.Error("mark processed failed", "post_id", p.ID, "error", err)
	}

	return &Status{
		OK:         true,
		PostID:     p.ID,
		Processed:  true,
		Evaluation: eval,
		Draft:      draft,
		Skipped:    draft == nil,
		SkipReason: skipReason,
		Counts: Counts{
			Articles: len(resolved.Articles),
			Images:   len(resolved.Images),
			Quoted:   len(buckets.quoted),
			Thread:   len(buckets.conversation),
		},
	}, nil
}

func (pl *Pipeline) evaluate(ctx context.Context, p *post.Post, b contextBuckets, articles []resolve.Article, blobs []reason.Blob) (*post.Evaluation, error) {
	template, err := pl.Templates.Get("evaluate")
	if err != nil {
		return nil, err
	}

	req := reason.BuildRequest(evaluationContext(p, b, articles), blobs, template, reason.EvaluationBudget)
	raw, err := pl.Client.Generate(ctx, req, "evaluate")
	if err != nil {
		return nil, err
	}

	spec := interpret.Spec{
		TextFields:   []string{"reasoning", "intention", "quadrant"},
		PrimaryField: "reasoning",
		Defaults: map[string]any{
			"quality_score":       0.5,
			"intention":           post.IntentionAmbiguous,
			"resonance_potential": 0.5,
		},
	}
	fallback := map[string]any{
		"quality_score":       0.5,
		"intention":           post.IntentionAmbiguous,
		"resonance_potential": 0.5,
		"reasoning":           "evaluation reply could not be interpreted",
	}
	result := interpret.Interpret(raw, spec, fallback, pl.Log)
	pl.Log.Debug("evaluation interpreted", "post_id", p.ID, "stage", result.Stage)

	return decodeEvaluation(result.Record, p.ID, raw), nil
}

func (pl *Pipeline) draft(ctx context.Context, p *post.Post, b contextBuckets, articles []resolve.Article, blobs []reason.Blob, eval *post.Evaluation) (*post.Draft, string, error) {
	template, err := pl.Templates.Get("draft")
	if err != nil {
		return nil, "", err
	}

	req := reason.BuildRequest(draftContext(p, b, articles, eval), blobs, template, reason.DraftBudget(p.Mode))
	raw, err := pl.Client.Generate(ctx, req, "draft")
	if err != nil {
		return nil, "", err
	}

	spec := interpret.Spec{
		TextFields:   []string{"draft", "tone", "reason"},
		PrimaryField: "draft",
		Defaults:     map[string]any{"tone": "neutral"},
	}
	fallback := map[string]any{"skip": true, "reason": "draft reply could not be interpreted"}
	result := interpret.Interpret(raw, spec, fallback, pl.Log)
	pl.Log.Debug("draft interpreted", "post_id", p.ID, "stage", result.Stage)

	return decodeDraft(result.Record, p)
}

// decodeEvaluation maps a recovered record onto an Evaluation, clamping
// scores and normalizing labels. The quadrant is derived when the reply
// omits it.
func decodeEvaluation(record map[string]any, postID, raw string) *post.Evaluation {
	quality := clampScore(record["quality_score"], 0.5)
	intention := normalizeIntention(stringField(record, "intention"))

	quadrant := stringField(record, "quadrant")
	if quadrant == "" {
		quadrant = post.QuadrantFor(quality, intention)
	}

	return &post.Evaluation{
		ID:                 post.NewID(),
		PostID:             postID,
		QualityScore:       quality,
		Intention:          intention,
		Quadrant:           quadrant,
		ResonancePotential: clampScore(record["resonance_potential"], 0.5),
		Reasoning:          stringField(record, "reasoning"),
		RawJSON:            raw,
		CreatedAt:          time.Now().UTC(),
	}
}

// decodeDraft maps a recovered record onto a Draft, or returns the skip
// reason when the service declined to reply.
func decodeDraft(record map[string]any, p *post.Post) (*post.Draft, string, error) {
	if skip, ok := record["skip"].(bool); ok && skip {
		reason := stringField(record, "reason")
		if reason == "" {
			reason = "no reason given"
		}
		return nil, reason, nil
	}

	text := stringField(record, "draft")
	if strings.TrimSpace(text) == "" {
		return nil, "empty draft text", nil
	}

	tone := stringField(record, "tone")
	if tone == "" {
		tone = "neutral"
	}

	now := time.Now().UTC()
	return &post.Draft{
		ID:        post.NewID(),
		PostID:    p.ID,
		Text:      post.NormalizeDraft(text, p.Mode),
		Tone:      tone,
		Mode:      p.Mode,
		Status:    post.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, "", nil
}

func clampScore(v any, fallback float64) float64 {
	f, ok := v.(float64)
	if !ok {
		return fallback
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func normalizeIntention(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case post.IntentionCreative:
		return post.IntentionCreative
	case post.IntentionConsumptive:
		return post.IntentionConsumptive
	case "mixed", post.IntentionAmbiguous:
		return post.IntentionAmbiguous
	}
	return post.IntentionAmbiguous
}

func stringField(record map[string]any, name string) string {
	s, _ := record[name].(string)
	return strings.TrimSpace(s)
}

// Verify the concrete client satisfies the pipeline's surface.
var _ Generator = (*reason.Client)(nil)
