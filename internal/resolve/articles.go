package resolve

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// Hosts belonging to the capture platform itself. Their pages are
// already visible to the reasoning service through the post context.
var platformHosts = map[string]struct{}{
	"x.com":              {},
	"twitter.com":        {},
	"mobile.twitter.com": {},
}

// Regions stripped before text extraction.
const strippedSelectors = "script, style, noscript, iframe, nav, header, footer, aside, form"

// Content containers tried after the semantic regions fail.
var contentSelectors = []string{
	"article",
	"[role=main]",
	"main",
	".article-content",
	".post-content",
	".entry-content",
	".content",
}

// FetchArticles resolves up to maxArticles candidate URLs concurrently.
// Platform-internal URLs are excluded and duplicates collapsed before
// the cap applies. Failed fetches are dropped and counted.
func (r *Resolver) FetchArticles(ctx context.Context, urls []string) ([]Article, int) {
	candidates := make([]string, 0, len(urls))
	for _, u := range dedupe(urls) {
		if isPlatformURL(u) {
			continue
		}
		candidates = append(candidates, u)
	}
	if len(candidates) > maxArticles {
		candidates = candidates[:maxArticles]
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	results := make([]Article, len(candidates))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, u := range candidates {
		eg.Go(func() error {
			results[i] = r.fetchArticle(egCtx, u)
			return nil
		})
	}
	_ = eg.Wait()

	kept := make([]Article, 0, len(results))
	dropped := 0
	for _, a := range results {
		if a.Err != "" {
			dropped++
			r.log.Warn("article dropped", "url", a.URL, "reason", a.Err)
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

func (r *Resolver) fetchArticle(ctx context.Context, articleURL string) Article {
	art := Article{URL: articleURL}

	fetchCtx, cancel := context.WithTimeout(ctx, r.articleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, articleURL, nil)
	if err != nil {
		art.Err = "bad_url"
		return art
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || fetchCtx.Err() != nil {
			art.Err = "timeout"
		} else {
			art.Err = "fetch_failed"
		}
		return art
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		art.Err = "status"
		return art
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		art.Err = "content_type"
		return art
	}

	art.ResolvedURL = resp.Request.URL.String()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		art.Err = "parse_failed"
		return art
	}

	art.Title, art.Text = extract(doc)
	return art
}

// extract pulls a title and readable text from a parsed page.
func extract(doc *goquery.Document) (title, text string) {
	doc.Find(strippedSelectors).Remove()

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		title = strings.TrimSpace(og)
	} else {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for _, sel := range contentSelectors {
		if region := doc.Find(sel).First(); region.Length() > 0 {
			text = collapseText(region.Text())
			if text != "" {
				break
			}
		}
	}
	if text == "" {
		text = collapseText(doc.Find("body").Text())
	}

	if utf8.RuneCountInString(text) < minUsefulText {
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			if d := strings.TrimSpace(desc); d != "" {
				text = d
			}
		}
	}

	if runes := []rune(text); len(runes) > articleTextCeiling {
		text = string(runes[:articleTextCeiling]) + truncationMarker
	}
	return title, text
}

func collapseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isPlatformURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	_, ok := platformHosts[host]
	return ok
}
