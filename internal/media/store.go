// Package media persists fetched binary content and serves it back
// under stable public paths.
package media

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store saves binary payloads and returns the public URL they are
// reachable at.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// LocalStore writes payloads under a directory served at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a store rooted at dir. Files are addressed as
// baseURL/name, e.g. "/media/abc.jpg".
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the root directory files are written to.
func (s *LocalStore) Dir() string { return s.dir }

// Put writes data to dir/name and returns its public URL. Names with
// path separators or traversal segments are rejected.
func (s *LocalStore) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	clean := path.Base(path.Clean(name))
	if clean == "." || clean == ".." || clean == "/" || clean == "" {
		return "", fmt.Errorf("invalid media name: %q", name)
	}
	if ext := extensionFor(contentType); ext != "" && !strings.HasSuffix(clean, ext) {
		clean += ext
	}
	if err := os.WriteFile(filepath.Join(s.dir, clean), data, 0o600); err != nil {
		return "", fmt.Errorf("write media %s: %w", clean, err)
	}
	return s.baseURL + "/" + clean, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}
