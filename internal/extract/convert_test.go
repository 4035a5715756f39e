package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

const samplePage = `<html><head><title>Doc</title><style>p{color:red}</style></head>
<body>
	<nav><a href="/home">Home</a></nav>
	<div class="cookie-banner">We use cookies</div>
	<h1>Heading</h1>
	<p>First paragraph with a <a href="/ref">reference</a>.</p>
	<img src="/pic.png" alt="pic">
	<script>alert(1)</script>
	<footer>footer text</footer>
</body></html>`

func TestConvertHTMLPassthrough(t *testing.T) {
	t.Parallel()

	got, err := newTestExtractor(t).Convert(samplePage, crawl.FormatHTML, false, false)
	require.NoError(t, err)
	require.Equal(t, samplePage, got)
}

func TestConvertText(t *testing.T) {
	t.Parallel()

	got, err := newTestExtractor(t).Convert(samplePage, crawl.FormatText, false, false)
	require.NoError(t, err)
	require.Contains(t, got, "Heading")
	require.Contains(t, got, "First paragraph")
	require.NotContains(t, got, "alert(1)")
	require.NotContains(t, got, "footer text")
	require.NotContains(t, got, "We use cookies")
	require.NotContains(t, got, "Home")
}

func TestConvertMarkdown(t *testing.T) {
	t.Parallel()

	got, err := newTestExtractor(t).Convert(samplePage, crawl.FormatMarkdown, false, false)
	require.NoError(t, err)
	require.Contains(t, got, "# Heading")
	require.Contains(t, got, "reference")
	require.NotContains(t, got, "](/ref)")
	require.NotContains(t, got, "pic.png")
	require.NotContains(t, got, "alert(1)")
	require.NotContains(t, got, "\n\n\n")
}

func TestConvertMarkdownIncludesLinksAndImages(t *testing.T) {
	t.Parallel()

	got, err := newTestExtractor(t).Convert(samplePage, crawl.FormatMarkdown, true, true)
	require.NoError(t, err)
	require.Contains(t, got, "](/ref)")
	require.Contains(t, got, "pic.png")
}

func TestConvertMarkdownDeterministic(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	first, err := e.Convert(samplePage, crawl.FormatMarkdown, false, false)
	require.NoError(t, err)
	second, err := e.Convert(samplePage, crawl.FormatMarkdown, false, false)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestConvertUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := newTestExtractor(t).Convert(samplePage, crawl.Format("pdf"), false, false)
	require.Error(t, err)
}

func TestConvertMarkdownTrimmed(t *testing.T) {
	t.Parallel()

	got, err := newTestExtractor(t).Convert(samplePage, crawl.FormatMarkdown, false, false)
	require.NoError(t, err)
	require.Equal(t, strings.TrimSpace(got), got)
}
