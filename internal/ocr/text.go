package ocr

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// TextResult is the outcome of the text extraction stage.
type TextResult struct {
	Text       string
	Pages      int
	PageErrors []*PageError
	Duration   time.Duration
}

// TextExtractor runs an Engine over every page and joins the results.
type TextExtractor struct {
	engine      Engine
	lang        string
	concurrency int
	logger      *slog.Logger
}

func NewTextExtractor(engine Engine, cfg Config, logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &TextExtractor{engine: engine, lang: cfg.Lang, concurrency: cfg.Concurrency, logger: logger}
}

// Extract recognizes each page independently. A page that fails contributes
// an empty string and a PageError; only cancellation of ctx is fatal.
// Page texts are joined with "\n" in page order.
func (x *TextExtractor) Extract(ctx context.Context, pages []PageImage) (TextResult, error) {
	start := time.Now()
	texts := make([]string, len(pages))

	var (
		mu       sync.Mutex
		pageErrs []*PageError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txt, err := x.engine.Recognize(gctx, p.Data, x.lang)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				x.logger.Warn("ocr.page.failed", "page", p.Number, "error", err)
				mu.Lock()
				pageErrs = append(pageErrs, &PageError{Page: p.Number, Err: err})
				mu.Unlock()
				return nil
			}
			x.logger.Debug("ocr.page.ok",
				"page", p.Number,
				"chars", len(txt),
				"confidence", heuristicConfidence(txt),
			)
			texts[i] = txt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TextResult{}, err
	}

	sort.Slice(pageErrs, func(i, j int) bool { return pageErrs[i].Page < pageErrs[j].Page })
	res := TextResult{
		Text:       strings.Join(texts, "\n"),
		Pages:      len(pages),
		PageErrors: pageErrs,
		Duration:   time.Since(start),
	}
	x.logger.Info("ocr.extract.ok",
		"pages", res.Pages,
		"failed_pages", len(pageErrs),
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
