// Package detector scores raw HTML for signs that the page is a
// client-rendered application whose static markup is empty or misleading.
package detector

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
)

// Threshold is the score at which a page is escalated to the browser tier.
const Threshold = 7

// Signal names reported in Result.Signals.
const (
	SignalLowTextContent   = "lowTextContent"
	SignalSPARootContainer = "spaRootContainer"
	SignalFrameworkDetect  = "frameworkDetected"
	SignalScriptHeavy      = "scriptHeavy"
	SignalDynamicDataFetch = "dynamicDataFetch"
	SignalJSOnlyNavigation = "jsOnlyNavigation"
	SignalMetadataOnly     = "metadataOnly"
)

// Result is the verdict for one document.
type Result struct {
	Score      int
	Signals    map[string]int
	TextLength int
	Escalate   bool
}

// Triggered returns the names of signals that contributed points.
func (r Result) Triggered() []string {
	var out []string
	for _, s := range signals {
		if r.Signals[s.name] > 0 {
			out = append(out, s.name)
		}
	}
	return out
}

type features struct {
	lower       string
	raw         string
	textLength  int
	scriptCount int
	anchorCount int
}

type signal struct {
	name    string
	weight  int
	trigger func(f features) bool
}

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe       = regexp.MustCompile(`\s+`)

	scriptTagRe = regexp.MustCompile(`(?i)<script[\s>/]`)
	anchorRe    = regexp.MustCompile(`(?i)<a\s[^>]*\bhref\s*=`)
	metaTagRe   = regexp.MustCompile(`(?i)<(meta|title)[\s>/]`)
	spaRootRe   = regexp.MustCompile(`(?i)(?:^|[\s"'/])id\s*=\s*["']?(app|root|__next|__nuxt)(["'\s/>]|$)`)
)

var frameworkTokens = []string{
	"react.render",
	"reactdom",
	"react-dom",
	"react.createelement",
	"__react",
	"data-reactroot",
	"data-reactid",
	"__next_data__",
	"/_next/static",
	"__nuxt__",
	"/_nuxt/",
	"data-v-app",
	"new vue(",
	"createapp(",
	"__vue__",
	"ng-version",
	"ng-app",
	"<app-root",
	"angular.module",
	"platformbrowserdynamic",
}

var dataFetchTokens = []string{
	"fetch(",
	"xmlhttprequest",
	"axios",
	"graphql",
	"apolloclient",
	"__apollo_state__",
	"$.ajax",
	"$.getjson",
	"urql",
}

var routerTokens = []string{
	"react-router",
	"vue-router",
	"@angular/router",
	"next/router",
	"history.pushstate",
	"router-link",
	"routerlink",
	"router-outlet",
	"ng-view",
	"ui-view",
	"onpopstate",
	"hashchange",
}

var signals = []signal{
	{SignalLowTextContent, 3, func(f features) bool { return f.textLength < 500 }},
	{SignalSPARootContainer, 4, func(f features) bool { return spaRootRe.MatchString(f.raw) }},
	{SignalFrameworkDetect, 4, func(f features) bool { return containsAny(f.lower, frameworkTokens) }},
	{SignalScriptHeavy, 2, func(f features) bool {
		return f.scriptCount >= 10 || float64(f.scriptCount)/float64(max(f.textLength, 1)) > 0.02
	}},
	{SignalDynamicDataFetch, 2, func(f features) bool { return containsAny(f.lower, dataFetchTokens) }},
	{SignalJSOnlyNavigation, 2, func(f features) bool {
		return f.anchorCount == 0 && containsAny(f.lower, routerTokens)
	}},
	{SignalMetadataOnly, 2, func(f features) bool {
		return f.textLength < 300 && metaTagRe.MatchString(f.raw)
	}},
}

// SignalNames lists every signal in evaluation order.
func SignalNames() []string {
	out := make([]string, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.name)
	}
	return out
}

// Score evaluates every signal against html and sums their weights.
// It never fails; malformed markup simply matches fewer patterns.
func Score(html string) Result {
	text := VisibleText(html)
	f := features{
		lower:       strings.ToLower(html),
		raw:         html,
		textLength:  utf8.RuneCountInString(text),
		scriptCount: len(scriptTagRe.FindAllStringIndex(html, -1)),
		anchorCount: len(anchorRe.FindAllStringIndex(html, -1)),
	}

	res := Result{
		Signals:    make(map[string]int, len(signals)),
		TextLength: f.textLength,
	}
	for _, s := range signals {
		points := 0
		if s.trigger(f) {
			points = s.weight
		}
		res.Signals[s.name] = points
		res.Score += points
	}
	res.Escalate = res.Score >= Threshold
	return res
}

// VisibleText strips script and style blocks and all tags, then collapses
// whitespace.
func VisibleText(html string) string {
	out := scriptBlockRe.ReplaceAllString(html, " ")
	out = styleBlockRe.ReplaceAllString(out, " ")
	out = tagRe.ReplaceAllString(out, " ")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Heuristic adapts Score to pages.
type Heuristic struct{}

// NewHeuristic creates a new detector.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Classify scores the page content.
func (h *Heuristic) Classify(page *crawler.Page) Result {
	return Score(page.Content)
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(page *crawler.Page) bool {
	return h.Classify(page).Escalate
}
