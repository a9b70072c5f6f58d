// Package fetch implements C2: bounded-concurrency retrieval of raw page
// bodies, with content-type/size guards, SHA-256 dedup, and priority
// scoring ahead of extraction (C3).
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

// Config configures the fetcher.
type Config struct {
	MaxContentSize int64  // bytes; pages over this are rejected
	Timeout        time.Duration
	UserAgent      string
}

// Fetcher retrieves raw HTML/text bodies under a bounded worker pool.
type Fetcher struct {
	cfg  Config
	pool *ants.Pool
	http *http.Client
}

func NewFetcher(cfg Config, pool *ants.Pool) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxContentSize <= 0 {
		cfg.MaxContentSize = 1 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Research-Agent/1.0)"
	}
	return &Fetcher{cfg: cfg, pool: pool, http: &http.Client{Timeout: cfg.Timeout}}
}

// RawPage is a fetched body awaiting extraction.
type RawPage struct {
	URL  string
	HTML string
	Err  error
}

// FetchURL retrieves a single page's body, applying the content-type and
// size guards. A rejected or failed fetch returns ("", err) rather than a
// partial body.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	res, err := f.http.Do(req)
	if err != nil {
		logger.Warnf(ctx, "fetch failed for %s: %v", url, err)
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		logger.Warnf(ctx, "fetch %s returned status %d", url, res.StatusCode)
		return "", &statusError{url: url, status: res.StatusCode}
	}

	contentType := strings.ToLower(res.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		logger.Warnf(ctx, "unsupported content type for %s: %s", url, contentType)
		return "", &unsupportedContentTypeError{url: url, contentType: contentType}
	}

	if cl := res.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > f.cfg.MaxContentSize {
			logger.Warnf(ctx, "content too large for %s: %d bytes", url, n)
			return "", &tooLargeError{url: url, size: n}
		}
	}

	limited := io.LimitReader(res.Body, f.cfg.MaxContentSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	if int64(len(body)) > f.cfg.MaxContentSize {
		logger.Warnf(ctx, "content too large for %s after read: %d bytes", url, len(body))
		return "", &tooLargeError{url: url, size: int64(len(body))}
	}

	return string(body), nil
}

// BatchFetch fetches every URL concurrently through the bounded pool,
// deduplicating the input list while preserving first-seen order. Each
// result is index-aligned with the deduplicated URL list; a per-URL
// failure never aborts the batch.
func (f *Fetcher) BatchFetch(ctx context.Context, urls []string) []RawPage {
	unique := dedupPreserveOrder(urls)
	pages := make([]RawPage, len(unique))

	var wg sync.WaitGroup
	for i, url := range unique {
		i, url := i, url
		wg.Add(1)
		err := f.pool.Submit(func() {
			defer wg.Done()
			html, err := f.FetchURL(ctx, url)
			pages[i] = RawPage{URL: url, HTML: html, Err: err}
		})
		if err != nil {
			wg.Done()
			pages[i] = RawPage{URL: url, Err: err}
		}
	}
	wg.Wait()

	logger.Infof(ctx, "batch fetch complete: %d urls, %d failed", len(unique), countFailed(pages))
	return pages
}

// BatchFetchErrgroup is an alternative batch entry point that runs the
// fetches in an errgroup bound to ctx, so cancelling ctx stops outstanding
// fetches. C5's fetch stage uses BatchFetch; this variant has no caller
// in this module.
func (f *Fetcher) BatchFetchErrgroup(ctx context.Context, urls []string) ([]RawPage, error) {
	unique := dedupPreserveOrder(urls)
	pages := make([]RawPage, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.pool.Cap()) // same bound as the ants.Pool; Cap() is -1 (no limit) for an unbounded pool
	for i, url := range unique {
		i, url := i, url
		g.Go(func() error {
			html, err := f.FetchURL(gctx, url)
			pages[i] = RawPage{URL: url, HTML: html, Err: err}
			return nil // a single fetch failure degrades, it never fails the batch
		})
	}
	_ = g.Wait()
	return pages, nil
}

func dedupPreserveOrder(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func countFailed(pages []RawPage) int {
	n := 0
	for _, p := range pages {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// ContentHash returns a SHA-256 hex digest of a content's leading 1000
// characters, used for near-duplicate detection across sources.
func ContentHash(text string) string {
	if r := []rune(text); len(r) > 1000 {
		text = string(r[:1000])
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Deduplicate removes contents whose leading 1000 characters hash the
// same as an earlier one, keeping the first occurrence. Contents with no
// text (fetch/extract failures) are always kept.
func Deduplicate(contents []types.Content) []types.Content {
	seen := make(map[string]struct{}, len(contents))
	out := make([]types.Content, 0, len(contents))
	for _, c := range contents {
		if c.Text == "" {
			out = append(out, c)
			continue
		}
		h := ContentHash(c.Text)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Prioritize scores each content on quality signals (non-empty text,
// word count, title presence, extraction method, absence of errors) and
// returns the top maxItems, highest score first.
func Prioritize(contents []types.Content, maxItems int) []types.Content {
	type scored struct {
		score   int
		content types.Content
	}
	scoredContents := make([]scored, 0, len(contents))
	for _, c := range contents {
		score := 0
		if c.Text != "" {
			score += 10
		}
		if c.WordCount > 500 {
			score += 5
		}
		if c.WordCount > 1000 {
			score += 5
		}
		if c.Title != "" {
			score += 2
		}
		switch c.Method {
		case types.MethodPrimary:
			score += 3
		case types.MethodStructural:
			score += 1
		}
		if c.Error == "" {
			score += 5
		}
		scoredContents = append(scoredContents, scored{score: score, content: c})
	}

	sort.SliceStable(scoredContents, func(i, j int) bool { return scoredContents[i].score > scoredContents[j].score })

	if maxItems <= 0 || maxItems > len(scoredContents) {
		maxItems = len(scoredContents)
	}
	out := make([]types.Content, maxItems)
	for i := 0; i < maxItems; i++ {
		out[i] = scoredContents[i].content
	}
	return out
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return "http status " + strconv.Itoa(e.status) + " fetching " + e.url
}

type unsupportedContentTypeError struct {
	url         string
	contentType string
}

func (e *unsupportedContentTypeError) Error() string {
	return "unsupported content type " + e.contentType + " for " + e.url
}

type tooLargeError struct {
	url  string
	size int64
}

func (e *tooLargeError) Error() string {
	return "content too large (" + strconv.FormatInt(e.size, 10) + " bytes) for " + e.url
}
