package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

var acceptedMediaTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

const defaultMediaType = "image/jpeg"

// FetchImages resolves up to maxImages attachment URLs concurrently.
// Oversize payloads and failed fetches are dropped and counted.
func (r *Resolver) FetchImages(ctx context.Context, urls []string) ([]Image, int) {
	candidates := dedupe(urls)
	if len(candidates) > maxImages {
		candidates = candidates[:maxImages]
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	results := make([]*Image, len(candidates))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, u := range candidates {
		eg.Go(func() error {
			results[i] = r.fetchImage(egCtx, u)
			return nil
		})
	}
	_ = eg.Wait()

	kept := make([]Image, 0, len(results))
	dropped := 0
	for i, img := range results {
		if img == nil {
			dropped++
			r.log.Warn("image dropped", "url", candidates[i])
			continue
		}
		kept = append(kept, *img)
	}
	return kept, dropped
}

func (r *Resolver) fetchImage(ctx context.Context, imageURL string) *Image {
	fetchCtx, cancel := context.WithTimeout(ctx, r.imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	// Read one extra byte so exactly-at-limit payloads survive.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxImageBytes {
		return nil
	}

	img := &Image{
		SourceURL: imageURL,
		MediaType: mediaTypeFor(resp.Header.Get("Content-Type")),
		Data:      base64.StdEncoding.EncodeToString(data),
	}

	if r.media != nil {
		sum := sha256.Sum256([]byte(imageURL))
		name := hex.EncodeToString(sum[:8])
		stored, err := r.media.Put(ctx, name, data, img.MediaType)
		if err != nil {
			r.log.Warn("image store failed", "url", imageURL, "error", err)
		} else {
			img.StoredURL = stored
		}
	}
	return img
}

func mediaTypeFor(contentType string) string {
	mt := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if _, ok := acceptedMediaTypes[mt]; ok {
		return mt
	}
	return defaultMediaType
}
