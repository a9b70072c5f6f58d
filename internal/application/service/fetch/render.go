package fetch

import (
	"context"
	"time"

	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/chromedp/chromedp"
)

// jsRenderMinBodyLen is the byte threshold below which a fetched HTML
// body on an otherwise-HTML response is treated as suspiciously small
// (likely a JS-only shell) and worth a headless re-render.
const jsRenderMinBodyLen = 512

// RenderConfig configures the headless-render fallback.
type RenderConfig struct {
	Timeout time.Duration
}

// Renderer re-fetches a page through a headless Chrome instance, for
// pages whose static HTML is too small to extract anything useful from —
// an addition beyond the original fetcher, which has no render fallback.
type Renderer struct {
	cfg RenderConfig
}

func NewRenderer(cfg RenderConfig) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Renderer{cfg: cfg}
}

// ShouldRender reports whether a fetched body is small enough on an HTML
// page to be worth a headless re-render.
func ShouldRender(body string) bool {
	return len(body) < jsRenderMinBodyLen
}

// Render navigates to url in a headless browser and returns the
// post-render DOM as HTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	browserCtx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	var html string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		logger.Warnf(ctx, "headless render failed for %s: %v", url, err)
		return "", err
	}
	return html, nil
}
