// Package storage selects the blob store that fetched pages are written to.
package storage

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/storage/gcs"
	"github.com/JakeFAU/silkcrawl/internal/storage/local"
)

// Config chooses a backend. At most one of LocalDir and GCSBucket may be set.
type Config struct {
	LocalDir  string
	GCSBucket string
}

// Store is a blob store that holds resources until closed.
type Store interface {
	crawler.BlobStore
	Close() error
}

// Open returns the configured store, or nil when neither backend is set.
func Open(ctx context.Context, cfg Config, gcsOpts ...option.ClientOption) (Store, error) {
	localDir := strings.TrimSpace(cfg.LocalDir)
	bucket := strings.TrimSpace(cfg.GCSBucket)
	switch {
	case localDir != "" && bucket != "":
		return nil, fmt.Errorf("local dir and gcs bucket are mutually exclusive")
	case localDir != "":
		store, err := local.New(local.Config{BaseDir: localDir})
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		return store, nil
	case bucket != "":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: bucket}, gcsOpts...)
		if err != nil {
			return nil, fmt.Errorf("open gcs store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}
