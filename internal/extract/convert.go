package extract

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

var excessNewlinesRe = regexp.MustCompile(`\n{3,}`)

// Convert renders HTML in the requested format. Markdown output strips noise
// elements first; links are unwrapped to their text and images dropped unless
// explicitly requested, so the same page always converts to the same bytes
// for a given option set.
func (e *Extractor) Convert(html string, format crawl.Format, includeLinks, includeImages bool) (string, error) {
	switch format {
	case crawl.FormatHTML:
		return html, nil
	case crawl.FormatText:
		return e.text(html)
	case crawl.FormatMarkdown:
		return e.markdown(html, includeLinks, includeImages)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func (e *Extractor) markdown(html string, includeLinks, includeImages bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	removeNoise(doc)
	doc.Find("button, input, form").Remove()

	if !includeLinks {
		doc.Find("a").Each(func(_ int, s *goquery.Selection) {
			s.ReplaceWithNodes(s.Contents().Nodes...)
		})
	}
	if !includeImages {
		doc.Find("img").Remove()
	}

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize cleaned html: %w", err)
	}

	converter := md.NewConverter("", true, &md.Options{HeadingStyle: "atx"})
	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	markdown = excessNewlinesRe.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown), nil
}
