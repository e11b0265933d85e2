package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher loads a target and returns the populated page.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (*Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, target Target) (*Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, target Target) (*Page, error) {
	return f(ctx, target)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
