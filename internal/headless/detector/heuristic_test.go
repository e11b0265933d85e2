package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
)

func plainArticle() string {
	return "<html><body><p>" +
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 15) +
		"</p></body></html>"
}

func TestScore_EmptySPAShellEscalates(t *testing.T) {
	t.Parallel()

	res := Score("<div id='app'></div><script>React.render()</script>")
	require.Equal(t, 0, res.TextLength)
	require.Equal(t, 3, res.Signals[SignalLowTextContent])
	require.Equal(t, 4, res.Signals[SignalSPARootContainer])
	require.Equal(t, 4, res.Signals[SignalFrameworkDetect])
	require.GreaterOrEqual(t, res.Score, Threshold)
	require.True(t, res.Escalate)
}

func TestScore_PlainArticleStaysStatic(t *testing.T) {
	t.Parallel()

	res := Score(plainArticle())
	require.GreaterOrEqual(t, res.TextLength, 500)
	require.Equal(t, 0, res.Score)
	require.False(t, res.Escalate)
	require.Empty(t, res.Triggered())
}

func TestScore_ShortStaticPageBelowThreshold(t *testing.T) {
	t.Parallel()

	html := "<html><head><title>Test</title></head><body><p>This is a simple page with enough text content " +
		"to avoid triggering escalation signals. It contains plain HTML without any JavaScript frameworks, SPA " +
		"root containers, or other indicators that would require dynamic loading. The content is substantial " +
		"enough to pass the text length check.</p></body></html>"
	res := Score(html)
	require.Equal(t, 3, res.Signals[SignalLowTextContent])
	require.False(t, res.Escalate)
}

func TestScore_MultipleRootsAndMarkers(t *testing.T) {
	t.Parallel()

	res := Score("<div id='app'></div><div id='root'></div><script>__REACT__</script><script>React.render()</script>")
	require.True(t, res.Escalate)
	require.Equal(t, 2, res.Signals[SignalScriptHeavy])
}

func TestScore_IndividualSignals(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("lorem ipsum dolor sit amet ", 30)
	tests := []struct {
		name   string
		html   string
		signal string
		want   int
	}{
		{
			name:   "spa root double quotes",
			html:   `<div id="__next"></div>`,
			signal: SignalSPARootContainer,
			want:   4,
		},
		{
			name:   "nuxt root unquoted",
			html:   `<div id=__nuxt></div>`,
			signal: SignalSPARootContainer,
			want:   4,
		},
		{
			name:   "other id is not a root",
			html:   `<div id="application-shell"></div>`,
			signal: SignalSPARootContainer,
			want:   0,
		},
		{
			name:   "data attribute named id is not a root",
			html:   `<div data-id="root"></div><span aria-id='app'></span>`,
			signal: SignalSPARootContainer,
			want:   0,
		},
		{
			name:   "root id after another attribute",
			html:   `<div class="shell" id='app'></div>`,
			signal: SignalSPARootContainer,
			want:   4,
		},
		{
			name:   "framework token is case insensitive",
			html:   `<script id="__NEXT_DATA__" type="application/json">{}</script>`,
			signal: SignalFrameworkDetect,
			want:   4,
		},
		{
			name:   "angular version attribute",
			html:   `<app-root ng-version="17.0.0"></app-root>`,
			signal: SignalFrameworkDetect,
			want:   4,
		},
		{
			name:   "ten scripts are heavy",
			html:   "<p>" + longText + longText + "</p>" + strings.Repeat(`<script src="/a.js"></script>`, 10),
			signal: SignalScriptHeavy,
			want:   2,
		},
		{
			name:   "script density is heavy",
			html:   "<p>" + strings.Repeat("x", 100) + "</p><script></script><script></script><script></script>",
			signal: SignalScriptHeavy,
			want:   2,
		},
		{
			name:   "sparse scripts are not heavy",
			html:   "<p>" + longText + longText + "</p><script></script>",
			signal: SignalScriptHeavy,
			want:   0,
		},
		{
			name:   "axios is a data fetch",
			html:   `<script>Axios.get("/api/items")</script>`,
			signal: SignalDynamicDataFetch,
			want:   2,
		},
		{
			name:   "xhr is a data fetch",
			html:   `<script>new XMLHttpRequest()</script>`,
			signal: SignalDynamicDataFetch,
			want:   2,
		},
		{
			name:   "router without anchors",
			html:   `<script src="/vue-router.js"></script><router-view></router-view>`,
			signal: SignalJSOnlyNavigation,
			want:   2,
		},
		{
			name:   "router with anchors",
			html:   `<a href="/about">About</a><script src="/vue-router.js"></script>`,
			signal: SignalJSOnlyNavigation,
			want:   0,
		},
		{
			name:   "no anchors and no router",
			html:   `<p>nothing here</p>`,
			signal: SignalJSOnlyNavigation,
			want:   0,
		},
		{
			name:   "metadata only",
			html:   `<head><meta charset="utf-8"><title>Shop</title></head><body></body>`,
			signal: SignalMetadataOnly,
			want:   2,
		},
		{
			name:   "metadata with real text",
			html:   `<head><title>Shop</title></head><body><p>` + longText + `</p></body>`,
			signal: SignalMetadataOnly,
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Score(tt.html)
			require.Equalf(t, tt.want, res.Signals[tt.signal], "signals: %v", res.Signals)
		})
	}
}

func TestScore_ScoreIsSumOfSignals(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<div <p unclosed",
		plainArticle(),
		"<div id='app'></div><script>React.render()</script>",
		`<html><head><title>x</title></head><body><div id="root"></div><script>fetch("/api")</script></body></html>`,
	}
	for _, in := range inputs {
		res := Score(in)
		sum := 0
		for _, points := range res.Signals {
			sum += points
		}
		require.Len(t, res.Signals, 7)
		require.Equal(t, sum, res.Score)
		require.Equal(t, res.Score >= Threshold, res.Escalate)
		require.Equal(t, res, Score(in), "classification must be deterministic")
		require.LessOrEqual(t, res.Score, 19)
	}
}

func TestVisibleText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", VisibleText("<div id='app'></div><script>React.render()</script>"))
	require.Equal(t, "Hello World", VisibleText("<style>.a { color: red }</style><p>Hello   <b>World</b></p>"))
	require.Equal(t, "a b", VisibleText("<SCRIPT type=\"module\">\nlet x = '<p>';\n</SCRIPT>a\n\n\tb"))
}

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	h := NewHeuristic()
	shell := crawler.MustPage("https://example.com")
	shell.Content = `<div id="root"></div><script src="/static/js/main.js"></script><script>ReactDOM.createRoot()</script>`
	require.True(t, h.ShouldPromote(shell))

	article := crawler.MustPage("https://example.com/article")
	article.Content = plainArticle()
	require.False(t, h.ShouldPromote(article))
	require.Equal(t, 0, h.Classify(article).Score)
}

func TestSignalNames(t *testing.T) {
	t.Parallel()

	names := SignalNames()
	require.Len(t, names, 7)
	require.Equal(t, SignalLowTextContent, names[0])
	require.Equal(t, SignalMetadataOnly, names[len(names)-1])
	for _, name := range names {
		require.Contains(t, Score("").Signals, name)
	}
}
