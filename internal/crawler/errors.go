package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when a target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrFetchFailed matches every *FetchError.
	ErrFetchFailed = errors.New("fetch failed")
)

// Fetch tiers reported on FetchError.
const (
	TierStatic  = "static"
	TierDynamic = "dynamic"
)

// FetchError reports a transport or navigation failure for a URL.
type FetchError struct {
	URL  string
	Tier string
	Err  error
}

// NewFetchError wraps err for url.
func NewFetchError(tier, url string, err error) *FetchError {
	return &FetchError{URL: url, Tier: tier, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load page %s (%s): %v", e.URL, e.Tier, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) true for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
