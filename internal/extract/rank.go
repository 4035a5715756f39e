package extract

import (
	"math"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/M4YAVI/crawlconsole/internal/crawl"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75

	minChunkChars = 20
)

// Rank scores the page's paragraphs against the query with BM25 and returns
// the topK positive-scoring chunks plus the total paragraph count. When the
// page has no usable paragraphs the whole document text is the single chunk.
func (e *Extractor) Rank(html, query string, topK int) ([]crawl.ScoredChunk, int) {
	paragraphs := e.paragraphs(html)
	if len(paragraphs) == 0 {
		return nil, 0
	}

	scores := bm25Scores(paragraphs, query)

	ranked := make([]crawl.ScoredChunk, len(paragraphs))
	for i, p := range paragraphs {
		ranked[i] = crawl.ScoredChunk{Text: p, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	out := make([]crawl.ScoredChunk, 0, topK)
	for _, chunk := range ranked {
		if len(out) >= topK || chunk.Score <= 0 {
			break
		}
		chunk.Score = math.Round(chunk.Score*10000) / 10000
		out = append(out, chunk)
	}
	return out, len(paragraphs)
}

func (e *Extractor) paragraphs(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var paragraphs []string
	doc.Find("p, li, h1, h2, h3, td").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if len(text) > minChunkChars {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := collapseWhitespace(doc.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return paragraphs
}

// bm25Scores is Okapi BM25 over whitespace-tokenized lowercase chunks.
func bm25Scores(chunks []string, query string) []float64 {
	docs := make([][]string, len(chunks))
	totalLen := 0
	for i, c := range chunks {
		docs[i] = strings.Fields(strings.ToLower(c))
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return make([]float64, len(chunks))
	}

	docFreq := make(map[string]int)
	termFreqs := make([]map[string]int, len(docs))
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		termFreqs[i] = tf
		for term := range tf {
			docFreq[term]++
		}
	}

	n := float64(len(docs))
	scores := make([]float64, len(docs))
	for _, term := range strings.Fields(strings.ToLower(query)) {
		df, ok := docFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i := range docs {
			tf := float64(termFreqs[i][term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(len(docs[i]))/avgLen
			scores[i] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
		}
	}
	return scores
}
