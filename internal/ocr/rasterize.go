package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/invoice-intake/constants"
)

// Rasterizer renders documents into ordered page images.
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	// pageCount parses and validates a paginated document.
	pageCount func(path string) (int, error)
}

func NewRasterizer(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Rasterizer{
		cfg:       cfg.withDefaults(),
		runner:    runner,
		logger:    logger,
		pageCount: pdfPageCount,
	}
}

// Rasterize returns the pages of the document stored at path. Image input
// yields a single page holding the original bytes.
func (r *Rasterizer) Rasterize(ctx context.Context, path string, kind constants.DocumentKind) ([]PageImage, error) {
	if kind != constants.KindPaginated {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return []PageImage{{Number: 1, Data: data}}, nil
	}

	start := time.Now()
	count, err := r.pageCount(path)
	if err != nil {
		r.logger.Warn("ocr.rasterize.invalid_pdf", "path", path, "error", err)
		return nil, &ConversionError{Path: path, Err: err}
	}
	if count == 0 {
		return nil, &ConversionError{Path: path, Err: errors.New("document has no pages")}
	}

	tmpDir, err := os.MkdirTemp("", "invoice-pp-*")
	if err != nil {
		return nil, err
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("ocr.temp.remove_failed", "path", dir, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png [-f 1 -l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
	if r.cfg.MaxPages > 0 && count > r.cfg.MaxPages {
		args = append(args, "-f", "1", "-l", strconv.Itoa(r.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConversionError{Path: path, Err: fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))}
	}

	// pdftoppm zero-pads page numbers to a fixed width, so lexical order is page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if r.cfg.MaxPages > 0 && len(matches) > r.cfg.MaxPages {
		matches = matches[:r.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, &ConversionError{Path: path, Err: errors.New("pdftoppm produced no images")}
	}

	pages := make([]PageImage, 0, len(matches))
	for i, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, &ConversionError{Path: path, Err: fmt.Errorf("read page %d: %w", i+1, err)}
		}
		pages = append(pages, PageImage{Number: i + 1, Data: data})
	}
	if len(pages) != count && (r.cfg.MaxPages == 0 || len(pages) < r.cfg.MaxPages) {
		r.logger.Warn("ocr.rasterize.page_mismatch", "path", path, "declared", count, "rendered", len(pages))
	}
	r.logger.Info("ocr.rasterize.ok",
		"path", path,
		"pages", len(pages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

func pdfPageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu read: %w", err)
	}
	return pdfCtx.PageCount, nil
}
