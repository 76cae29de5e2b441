// Package post defines the domain types for captured posts, their
// resolved context, evaluations, and draft replies.
package post

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID for a post, evaluation, or draft.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Mode selects the reply form factor.
type Mode string

const (
	ModeShort Mode = "short"
	ModeLong  Mode = "long"
)

// ParseMode normalizes a mode string, defaulting to short.
func ParseMode(s string) Mode {
	if s == string(ModeLong) {
		return ModeLong
	}
	return ModeShort
}

// Context item kinds as captured from the source page.
const (
	KindConversation = "conversation"
	KindQuotedPost   = "quoted_tweet"
	KindArticleCard  = "article_card"
)

// Draft lifecycle statuses. The pipeline only writes pending;
// the remaining statuses are set by an external reviewer.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusEdited   = "edited"
	StatusPosted   = "posted"
)

// ValidStatus reports whether s is a recognized draft status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusEdited, StatusPosted:
		return true
	}
	return false
}

// Intention labels assigned by the evaluation pass.
const (
	IntentionCreative    = "creative"
	IntentionConsumptive = "consumptive"
	IntentionAmbiguous   = "ambiguous"
)

// ContextItem is one piece of surrounding context captured with a post:
// an earlier message in the thread, a quoted post, or a link-preview card.
type ContextItem struct {
	Kind        string       `json:"kind"`
	Author      string       `json:"author,omitempty"`
	Text        string       `json:"text,omitempty"`
	Position    int          `json:"position,omitempty"`
	URLs        []string     `json:"urls,omitempty"`
	Quote       *ContextItem `json:"quote,omitempty"`
	Card        *ContextItem `json:"card,omitempty"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Domain      string       `json:"domain,omitempty"`
}

// Post is a captured social-media post awaiting or past processing.
type Post struct {
	ID           string          `json:"id"`
	SourceURL    string          `json:"source_url"`
	AuthorHandle string          `json:"author_handle,omitempty"`
	AuthorName   string          `json:"author_name,omitempty"`
	Body         string          `json:"body,omitempty"`
	URLs         []string        `json:"urls,omitempty"`
	MediaURLs    []string        `json:"media_urls,omitempty"`
	Context      []ContextItem   `json:"context,omitempty"`
	Mode         Mode            `json:"mode"`
	Processed    bool            `json:"processed"`
	Fetched      *FetchedContent `json:"fetched,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FetchedContent is the snapshot of resolved external context persisted
// alongside the post after a pipeline run. SkipReason survives here so
// polling clients can see why an async run produced no draft.
type FetchedContent struct {
	Articles   []ArticleSnapshot `json:"articles,omitempty"`
	ImageCount int               `json:"image_count"`
	ImageURLs  []string          `json:"image_urls,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// ArticleSnapshot records one successfully extracted linked article.
type ArticleSnapshot struct {
	URL         string `json:"url"`
	ResolvedURL string `json:"resolved_url,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	TextLength  int    `json:"text_length"`
}

// Evaluation is the structured judgment returned by the reasoning
// service's first pass. RawJSON keeps the reply verbatim for audit.
type Evaluation struct {
	ID                 string    `json:"id"`
	PostID             string    `json:"post_id"`
	QualityScore       float64   `json:"quality_score"`
	Intention          string    `json:"intention"`
	Quadrant           string    `json:"quadrant"`
	ResonancePotential float64   `json:"resonance_potential"`
	Reasoning          string    `json:"reasoning"`
	RawJSON            string    `json:"raw_json,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Draft is a candidate reply produced by the second reasoning pass.
type Draft struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	Text      string    `json:"text"`
	Tone      string    `json:"tone,omitempty"`
	Mode      Mode      `json:"mode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var quadrants = map[[2]string]string{
	{"High", "Creative"}:    "Optimal (Target)",
	{"High", "Consumptive"}: "Hedonism (WALL-E)",
	{"Low", "Creative"}:     "Slop (Low Quality Output)",
	{"Low", "Consumptive"}:  "Junk Food (Minimal Existence)",
	{"High", "Mixed"}:       "Transitional (High Quality)",
	{"Low", "Mixed"}:        "Transitional (Low Quality)",
}

// QuadrantFor derives the composite quadrant label from a quality score
// and an intention label. Quality above 0.5 counts as High.
func QuadrantFor(quality float64, intention string) string {
	level := "Low"
	if quality > 0.5 {
		level = "High"
	}
	var vector string
	switch intention {
	case IntentionCreative:
		vector = "Creative"
	case IntentionConsumptive:
		vector = "Consumptive"
	case IntentionAmbiguous:
		vector = "Mixed"
	default:
		return "Pending (" + level + " Quality, Vector Unknown)"
	}
	return quadrants[[2]string{level, vector}]
}
