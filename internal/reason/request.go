package reason

import "resonate/internal/post"

// Output token budgets per pass.
const (
	EvaluationBudget = 1024
	draftBudgetShort = 512
	draftBudgetLong  = 4096
)

// DraftBudget returns the output token budget for a draft pass.
func DraftBudget(mode post.Mode) int {
	if mode == post.ModeLong {
		return draftBudgetLong
	}
	return draftBudgetShort
}

// Blob is a binary payload inlined into a request part.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one element of a multimodal request: text or an inline blob.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Request is a fully assembled reasoning-service invocation.
type Request struct {
	Parts        []Part
	Instructions string
	MaxTokens    int
}

const imageNote = "The attached images are part of the post. Take their content into account."

// BuildRequest assembles a multimodal request: image parts first, then
// the assembled context text. The image note is appended only when
// images are present.
func BuildRequest(contextText string, images []Blob, instructions string, maxTokens int) Request {
	parts := make([]Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, Part{InlineData: &Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}

	text := contextText
	if len(images) > 0 {
		text += "\n\n" + imageNote
	}
	parts = append(parts, Part{Text: text})

	return Request{
		Parts:        parts,
		Instructions: instructions,
		MaxTokens:    maxTokens,
	}
}
