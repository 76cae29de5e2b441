package pipeline

import (
	"fmt"
	"strings"

	"resonate/internal/post"
	"resonate/internal/resolve"
)

// Snippet lengths for the draft context, which is kept terser than the
// evaluation context so the instruction template dominates.
const (
	draftSnippetShort = 200
	draftSnippetLong  = 500
	draftArticleCap   = 1200
	evalArticleCap    = 4000
)

type contextBuckets struct {
	conversation []post.ContextItem
	quoted       []post.ContextItem
	cards        []post.ContextItem
}

func splitContext(items []post.ContextItem) contextBuckets {
	var b contextBuckets
	for _, item := range items {
		switch item.Kind {
		case post.KindConversation:
			b.conversation = append(b.conversation, item)
		case post.KindQuotedPost:
			b.quoted = append(b.quoted, item)
		case post.KindArticleCard:
			b.cards = append(b.cards, item)
		}
	}
	return b
}

// candidateURLs collects every URL the post references: embedded URLs,
// context item URLs, card targets, and URLs inside nested quotes/cards.
func candidateURLs(p *post.Post) []string {
	var urls []string
	urls = append(urls, p.URLs...)
	for _, item := range p.Context {
		urls = append(urls, itemURLs(&item)...)
	}
	return urls
}

func itemURLs(item *post.ContextItem) []string {
	var urls []string
	urls = append(urls, item.URLs...)
	if item.URL != "" {
		urls = append(urls, item.URL)
	}
	if item.Quote != nil {
		urls = append(urls, itemURLs(item.Quote)...)
	}
	if item.Card != nil {
		urls = append(urls, itemURLs(item.Card)...)
	}
	return urls
}

// evaluationContext renders the full picture for the evaluation pass:
// preceding conversation, the focal post, quoted posts, then resolved
// article content. An empty context degrades to post plus author.
func evaluationContext(p *post.Post, b contextBuckets, articles []resolve.Article) string {
	var sb strings.Builder

	if len(b.conversation) > 0 {
		sb.WriteString("Earlier in this conversation:\n")
		for _, item := range b.conversation {
			fmt.Fprintf(&sb, "- %s: %s\n", authorLabel(item.Author), item.Text)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Post by %s:\n%s\n", authorLabel(p.AuthorHandle), p.Body)

	for _, item := range b.quoted {
		fmt.Fprintf(&sb, "\nQuoted post by %s:\n%s\n", authorLabel(item.Author), item.Text)
	}

	for _, a := range articles {
		fmt.Fprintf(&sb, "\nLinked article: %s\n%s\n", a.Title, clip(a.Text, evalArticleCap))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// draftContext renders the same material condensed for the draft pass
// and appends the evaluation verdict so the reply can match register.
func draftContext(p *post.Post, b contextBuckets, articles []resolve.Article, eval *post.Evaluation) string {
	snippet := draftSnippetShort
	if p.Mode == post.ModeLong {
		snippet = draftSnippetLong
	}

	var sb strings.Builder

	if len(b.conversation) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, item := range b.conversation {
			fmt.Fprintf(&sb, "- %s: %s\n", authorLabel(item.Author), clip(item.Text, snippet))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Reply to this post by %s:\n%s\n", authorLabel(p.AuthorHandle), p.Body)

	for _, item := range b.quoted {
		fmt.Fprintf(&sb, "\nIt quotes %s:\n%s\n", authorLabel(item.Author), clip(item.Text, snippet))
	}

	for _, a := range articles {
		fmt.Fprintf(&sb, "\nLinked article (%s):\n%s\n", a.Title, clip(a.Text, draftArticleCap))
	}

	if eval != nil {
		fmt.Fprintf(&sb, "\nEvaluation verdict: quality %.2f, intention %s, %s.\n%s\n",
			eval.QualityScore, eval.Intention, eval.Quadrant, eval.Reasoning)
	}

	if p.Mode == post.ModeLong {
		sb.WriteString("\nWrite a substantial long-form reply, up to a few paragraphs.")
	} else {
		sb.WriteString("\nKeep the reply under 280 characters.")
	}

	return sb.String()
}

func authorLabel(author string) string {
	if author == "" {
		return "unknown author"
	}
	return author
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
