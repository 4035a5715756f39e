// Package extract converts raw HTML into the structured representations jobs
// request: markdown/text/html content, metadata, links, images, CSS selector
// captures, BM25-ranked chunks, and LLM-driven extraction.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

// noiseTags are removed before markdown/text conversion.
var noiseTags = []string{"script", "style", "nav", "footer", "header", "aside", "iframe", "noscript"}

// noiseClassRe matches class names of elements that are almost never content.
var noiseClassRe = regexp.MustCompile(`(?i)(ad|banner|cookie|popup|subscription|login-modal)`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extractor implements crawl.Extractor on top of goquery. It is stateless
// apart from the agent client and safe for concurrent use.
type Extractor struct {
	agent  *agentClient
	logger *zap.Logger
}

// Config controls the agent (LLM) backend.
type Config struct {
	AgentAPIKey  string
	AgentBaseURL string
	DefaultModel string
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	return &Extractor{
		agent:  newAgentClient(cfg),
		logger: logger,
	}
}

// Metadata pulls document-level metadata out of the page head.
func (e *Extractor) Metadata(html, baseURL string) crawl.Metadata {
	meta := crawl.Metadata{URL: baseURL}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("parse html for metadata", zap.String("url", baseURL), zap.Error(err))
		return meta
	}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if meta.Title == "" {
		meta.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	meta.Description = metaContent(doc, `meta[name="description"]`)
	if meta.Description == "" {
		meta.Description = metaContent(doc, `meta[property="og:description"]`)
	}
	meta.Author = metaContent(doc, `meta[name="author"]`)
	meta.Keywords = metaContent(doc, `meta[name="keywords"]`)

	if href, ok := doc.Find(`link[rel="icon"]`).First().Attr("href"); ok {
		meta.Favicon = absolutize(baseURL, href)
	}
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// Links returns the page's anchors resolved to absolute URLs, deduplicated in
// document order. mailto: and javascript: targets are skipped.
func (e *Extractor) Links(html, baseURL string) []crawl.Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("parse html for links", zap.String("url", baseURL), zap.Error(err))
		return nil
	}

	var links []crawl.Link
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		abs := absolutize(baseURL, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			text = abs
		}
		links = append(links, crawl.Link{URL: abs, Text: text})
	})
	return links
}

// Images returns the page's images resolved to absolute URLs.
func (e *Extractor) Images(html, baseURL string) []crawl.Image {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("parse html for images", zap.String("url", baseURL), zap.Error(err))
		return nil
	}

	var images []crawl.Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		images = append(images, crawl.Image{
			Src:   absolutize(baseURL, src),
			Alt:   strings.TrimSpace(s.AttrOr("alt", "")),
			Title: strings.TrimSpace(s.AttrOr("title", "")),
		})
	})
	return images
}

// Selectors captures the matches for each named CSS selector. Selectors that
// match nothing produce an empty slice, never an error.
func (e *Extractor) Selectors(html string, selectors []crawl.Selector) map[string][]string {
	if len(selectors) == 0 {
		return nil
	}
	out := make(map[string][]string, len(selectors))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		for _, sel := range selectors {
			out[sel.Name] = []string{}
		}
		return out
	}
	for _, sel := range selectors {
		values := []string{}
		doc.Find(sel.Selector).Each(func(_ int, s *goquery.Selection) {
			if sel.Attr != "" {
				if v, ok := s.Attr(sel.Attr); ok {
					values = append(values, v)
				}
				return
			}
			values = append(values, collapseWhitespace(s.Text()))
		})
		out[sel.Name] = values
	}
	return out
}

func absolutize(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func removeNoise(doc *goquery.Document) {
	for _, tag := range noiseTags {
		doc.Find(tag).Remove()
	}
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		if noiseClassRe.MatchString(s.AttrOr("class", "")) {
			s.Remove()
		}
	})
}

// text extracts clean plain text from HTML.
func (e *Extractor) text(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	removeNoise(doc)
	return collapseWhitespace(doc.Text()), nil
}
