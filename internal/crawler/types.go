package crawler

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Page is a web page identified by its normalized absolute URL.
// The URL never changes after construction; the remaining fields are
// overwritten together by every successful fetch.
type Page struct {
	url string

	Content     string
	ContentType string
	Status      int
	LastLoaded  time.Time
	Headers     http.Header
	Rendered    bool
}

// Snapshot is the result of a single fetch attempt.
type Snapshot struct {
	Content     string
	ContentType string
	Status      int
	LoadedAt    time.Time
	Headers     http.Header
	Rendered    bool
}

// NewPage builds a Page from a raw URL string.
func NewPage(raw string) (*Page, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return nil, err
	}
	return &Page{url: normalized}, nil
}

// MustPage is NewPage for static inputs; it panics on invalid URLs.
func MustPage(raw string) *Page {
	p, err := NewPage(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// URL returns the normalized URL of the page.
func (p *Page) URL() string {
	return p.url
}

// Loaded reports whether any fetch has populated the page.
func (p *Page) Loaded() bool {
	return !p.LastLoaded.IsZero()
}

// Populate records a fetch result, replacing every fetch-owned field.
func (p *Page) Populate(s Snapshot) {
	p.Content = s.Content
	p.ContentType = s.ContentType
	p.Status = s.Status
	p.LastLoaded = s.LoadedAt
	p.Headers = s.Headers
	p.Rendered = s.Rendered
}

// IsMarkup reports whether the content is text or markup rather than
// structured data such as JSON or a binary payload. Without a recorded
// content type the body is sniffed.
func (p *Page) IsMarkup() bool {
	ct := p.ContentType
	if strings.TrimSpace(ct) == "" {
		if p.Content == "" {
			return true
		}
		ct = mimetype.Detect([]byte(p.Content)).String()
	}
	return isMarkupType(ct)
}

func isMarkupType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(strings.ToLower(contentType), ";")
		mediaType = strings.TrimSpace(mediaType)
	}
	switch {
	case strings.HasSuffix(mediaType, "json"), strings.HasSuffix(mediaType, "+json"):
		return false
	case mediaType == "text/csv":
		return false
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml", mediaType == "application/xml",
		strings.HasSuffix(mediaType, "+xml"):
		return true
	default:
		return false
	}
}
