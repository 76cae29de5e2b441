package reason

import (
	"database/sql"
	"sync"

	"resonate/internal/db"
	"resonate/internal/errors"
)

// Default instruction templates. Overridable per deployment through the
// prompt_templates table; these ship as the fallback.
const defaultEvaluateTemplate = `You are evaluating a social-media post for quality and intent.
Consider the post text, its conversation context, any quoted post, linked
article content, and attached images.

Respond with a single JSON object and nothing else:
{
  "quality_score": <float 0..1, how substantive and well-crafted the post is>,
  "intention": "creative" | "consumptive" | "ambiguous",
  "quadrant": <short composite label>,
  "resonance_potential": <float 0..1, how likely a reply is to start a real exchange>,
  "reasoning": "<one or two sentences>"
}

Do not wrap the JSON in markdown fences. Do not add commentary.`

const defaultDraftTemplate = `You are drafting a reply to a social-media post.
Use the post, its context, the linked article content, any attached images,
and the evaluation verdict provided below.

Write a reply that adds something: a pointed question, a concrete addition,
or a genuine reaction. Never summarize the post back at its author.
Avoid em dashes and en dashes. Avoid hashtags. No markdown.

If the post is not worth replying to (spam, rage bait, pure promotion),
respond with {"skip": true, "reason": "<why>"} instead.

Otherwise respond with a single JSON object and nothing else:
{
  "draft": "<the reply text>",
  "tone": "<one word, e.g. curious, supportive, playful, neutral>"
}`

// TemplateStore loads instruction templates by name.
type TemplateStore interface {
	Get(name string) (string, error)
}

// DBTemplates reads templates from the prompt_templates table.
type DBTemplates struct {
	DB *sql.DB
}

func (s *DBTemplates) Get(name string) (string, error) {
	return db.GetTemplate(s.DB, name)
}

// Cache is a process-lifetime template cache. Entries are populated on
// first use and never invalidated; restart to pick up template edits.
type Cache struct {
	mu      sync.RWMutex
	store   TemplateStore
	entries map[string]string
}

// NewCache wraps a store. A nil store serves only the built-in defaults.
func NewCache(store TemplateStore) *Cache {
	return &Cache{store: store, entries: make(map[string]string)}
}

// Get returns the template body for name, preferring a stored override,
// falling back to the built-in default.
func (c *Cache) Get(name string) (string, error) {
	c.mu.RLock()
	if body, ok := c.entries[name]; ok {
		c.mu.RUnlock()
		return body, nil
	}
	c.mu.RUnlock()

	body, err := c.load(name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[name] = body
	c.mu.Unlock()
	return body, nil
}

func (c *Cache) load(name string) (string, error) {
	if c.store != nil {
		body, err := c.store.Get(name)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return "", err
		}
	}
	switch name {
	case "evaluate":
		return defaultEvaluateTemplate, nil
	case "draft":
		return defaultDraftTemplate, nil
	}
	return "", errors.NewNotFound("template", name)
}
