package crawler

// Target is a fetch target: either a raw URL string or a pre-built Page.
type Target struct {
	raw  string
	page *Page
}

// URLTarget wraps a raw URL. It is normalized when resolved.
func URLTarget(raw string) Target {
	return Target{raw: raw}
}

// PageTarget wraps an existing page so fetchers mutate it in place.
func PageTarget(p *Page) Target {
	return Target{page: p}
}

// URLTargets wraps every raw URL.
func URLTargets(raws ...string) []Target {
	out := make([]Target, 0, len(raws))
	for _, raw := range raws {
		out = append(out, URLTarget(raw))
	}
	return out
}

// Resolve returns the target's page, building it from the raw URL if needed.
func (t Target) Resolve() (*Page, error) {
	if t.page != nil {
		return t.page, nil
	}
	return NewPage(t.raw)
}

// Page returns the wrapped page, or nil for URL targets.
func (t Target) Page() *Page {
	return t.page
}

// String returns the page URL or the raw URL.
func (t Target) String() string {
	if t.page != nil {
		return t.page.URL()
	}
	return t.raw
}
