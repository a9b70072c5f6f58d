// Package extract implements C3: turning a raw page body into
// {title, main text, inline media, author, date}, via a density-scored
// primary extractor with a structural fallback, per §4.2.
package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
)

// candidateTags are block-level elements the primary extractor scores for
// text density when hunting for the main article body.
var candidateTags = []string{"article", "main", "section", "div"}

var wsRun = regexp.MustCompile(`\s+`)

// Extractor converts fetched HTML into structured Content.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract runs the primary extractor, falling back to the structural walk
// when the primary yields no text. Media is always collected from the raw
// DOM regardless of which text path wins.
func (e *Extractor) Extract(ctx context.Context, html, sourceURL string) types.Content {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Errorf(ctx, "extract: parse failed for %s: %v", sourceURL, err)
		return types.Content{URL: sourceURL, Method: types.MethodFailed, Error: err.Error()}
	}

	media := extractMedia(doc, sourceURL)

	if text, title, ok := e.extractPrimary(doc); ok {
		return types.Content{
			URL: sourceURL, Title: title, Text: text, Media: media,
			WordCount: wordCount(text), Method: types.MethodPrimary,
		}
	}

	text, title := e.extractStructural(doc)
	if text == "" {
		return types.Content{URL: sourceURL, Media: media, Method: types.MethodFailed, Error: "no extractable text"}
	}
	return types.Content{
		URL: sourceURL, Title: title, Text: text, Media: media,
		WordCount: wordCount(text), Method: types.MethodStructural,
	}
}

// extractPrimary scores every block-level candidate by text density
// (byte length of its trimmed text divided by the number of tags inside
// it plus one, a crude boilerplate-vs-content discriminator) and takes the
// highest scoring candidate whose text clears a minimum length.
func (e *Extractor) extractPrimary(doc *goquery.Document) (text, title string, ok bool) {
	stripBoilerplate(doc)

	var best *goquery.Selection
	bestScore := 0.0
	doc.Find(strings.Join(candidateTags, ", ")).Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if len(t) < 200 {
			return
		}
		tagCount := s.Find("*").Length() + 1
		score := float64(len(t)) / float64(tagCount)
		if score > bestScore {
			bestScore = score
			best = s
		}
	})
	if best == nil {
		return "", "", false
	}

	title = pageTitle(doc)
	text = cleanText(best.Text())
	if text == "" {
		return "", "", false
	}
	return text, title, true
}

// extractStructural strips script/style/nav/header/footer/aside, then
// prefers main/article/#content, then paragraph concatenation, then the
// whole body as a last resort.
func (e *Extractor) extractStructural(doc *goquery.Document) (text, title string) {
	stripBoilerplate(doc)
	title = pageTitle(doc)

	if sel := doc.Find("main, article, #content").First(); sel.Length() > 0 {
		if t := cleanText(sel.Text()); t != "" {
			return t, title
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n"), title
	}

	return cleanText(doc.Find("body").Text()), title
}

func stripBoilerplate(doc *goquery.Document) {
	doc.Find("script, style, nav, header, footer, aside").Remove()
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func cleanText(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n\n")
}

func wordCount(text string) int {
	return len(strings.Fields(wsRun.ReplaceAllString(text, " ")))
}

// extractMedia collects up to 5 images, 3 videos, and 3 YouTube iframe
// embeds from the structural DOM, resolving relative URLs against base.
func extractMedia(doc *goquery.Document, base string) []types.Media {
	baseURL, _ := url.Parse(base)
	var media []types.Media

	images := 0
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if images >= 5 {
			return false
		}
		if src, ok := s.Attr("src"); ok && src != "" {
			media = append(media, types.Media{Type: "image", URL: resolveURL(baseURL, src)})
			images++
		}
		return true
	})

	videos := 0
	doc.Find("video[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if videos >= 3 {
			return false
		}
		if src, ok := s.Attr("src"); ok && src != "" {
			media = append(media, types.Media{Type: "video", URL: resolveURL(baseURL, src)})
			videos++
		}
		return true
	})

	embeds := 0
	doc.Find("iframe[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if embeds >= 3 {
			return false
		}
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return true
		}
		if strings.Contains(src, "youtube.com") || strings.Contains(src, "youtu.be") {
			watchURL := strings.Replace(src, "/embed/", "/watch?v=", 1)
			media = append(media, types.Media{Type: "youtube", URL: watchURL})
			embeds++
		}
		return true
	})

	return media
}

func resolveURL(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if base == nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
