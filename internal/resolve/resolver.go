// Package resolve fetches the external content a post references:
// linked articles and attached images. Resolution is best-effort;
// individual fetch failures are counted and dropped, never fatal.
package resolve

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"resonate/internal/media"
	"resonate/internal/metrics"
)

const (
	maxArticles         = 3
	articleFetchTimeout = 8 * time.Second
	articleTextCeiling  = 4000
	minUsefulText       = 100
	truncationMarker    = "…"

	maxImages         = 4
	imageFetchTimeout = 10 * time.Second
	maxImageBytes     = 5 << 20
)

// Article is one extracted linked page.
type Article struct {
	URL         string
	ResolvedURL string
	Title       string
	Text        string
	Err         string
}

// Image is one fetched post attachment, base64-encoded for transport.
type Image struct {
	SourceURL string
	MediaType string
	Data      string
	StoredURL string
}

// Result is the outcome of resolving one post's external references.
type Result struct {
	Articles        []Article
	Images          []Image
	ArticlesDropped int
	ImagesDropped   int
}

// Resolver fetches articles and images for posts.
type Resolver struct {
	client         *http.Client
	media          media.Store
	log            *slog.Logger
	userAgent      string
	articleTimeout time.Duration
	imageTimeout   time.Duration
}

// New creates a Resolver. The media store may be nil, in which case
// fetched images are not persisted and carry no stored URL.
func New(store media.Store, log *slog.Logger, userAgent string) *Resolver {
	return &Resolver{
		client:         &http.Client{},
		media:          store,
		log:            log,
		userAgent:      userAgent,
		articleTimeout: articleFetchTimeout,
		imageTimeout:   imageFetchTimeout,
	}
}

// SetTimeouts overrides per-fetch timeouts. Used by tests.
func (r *Resolver) SetTimeouts(article, image time.Duration) {
	r.articleTimeout = article
	r.imageTimeout = image
}

// Resolve fetches articles and images concurrently. The two batches
// are independent; neither can fail the other.
func (r *Resolver) Resolve(ctx context.Context, articleURLs, imageURLs []string) Result {
	var result Result

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		result.Articles, result.ArticlesDropped = r.FetchArticles(egCtx, articleURLs)
		return nil
	})
	eg.Go(func() error {
		result.Images, result.ImagesDropped = r.FetchImages(egCtx, imageURLs)
		return nil
	})
	_ = eg.Wait()

	metrics.ArticlesResolved.Add(float64(len(result.Articles)))
	metrics.ArticlesDropped.Add(float64(result.ArticlesDropped))
	metrics.ImagesResolved.Add(float64(len(result.Images)))
	metrics.ImagesDropped.Add(float64(result.ImagesDropped))

	return result
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
