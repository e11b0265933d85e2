// Package sink persists successfully fetched pages to a blob store.
//
// Objects are content addressed: <prefix>/<host>/<sha256>.<ext>, so refetching
// an unchanged page overwrites the same object.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/hash/sha256"
)

// Sink writes page content to a BlobStore.
type Sink struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// New builds a Sink. A nil hasher selects SHA-256.
func New(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *Sink {
	if hasher == nil {
		hasher = sha256.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Put stores page content and returns the object URI.
func (s *Sink) Put(ctx context.Context, page *crawler.Page) (string, error) {
	if page == nil {
		return "", fmt.Errorf("page is required")
	}
	body := []byte(page.Content)
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}

	detected := mimetype.Detect(body)
	contentType := page.ContentType
	if contentType == "" {
		contentType = detected.String()
	}
	key := s.objectKey(page.URL(), digest, extension(contentType, detected))

	uri, err := s.store.PutObject(ctx, key, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store page %s: %w", page.URL(), err)
	}
	return uri, nil
}

// Hook adapts the sink to a success callback. Storage failures are logged,
// never returned, so they cannot fail a fetch.
func (s *Sink) Hook(ctx context.Context) crawler.SuccessFunc {
	return func(page *crawler.Page) {
		uri, err := s.Put(ctx, page)
		if err != nil {
			s.logger.Error("page sink failed", zap.String("url", page.URL()), zap.Error(err))
			return
		}
		s.logger.Debug("page stored", zap.String("url", page.URL()), zap.String("uri", uri))
	}
}

func (s *Sink) objectKey(rawURL, digest, ext string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	return path.Join(s.prefix, host, digest+ext)
}

// extension prefers the declared content type, falling back to sniffing.
func extension(contentType string, detected *mimetype.MIME) string {
	if m := mimetype.Lookup(mediaType(contentType)); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if ext := detected.Extension(); ext != "" {
		return ext
	}
	return ".bin"
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
