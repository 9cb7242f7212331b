package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/ocr"
)

func main() {
	cfg := common.LoadConfig()
	logger := cfg.NewLogger()

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <invoice.pdf|image>")
		os.Exit(2)
	}
	path := os.Args[1]
	if !constants.IsAllowedExt(filepath.Ext(path)) {
		logger.Error("unsupported file type", "path", path)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RasterizeTimeout+cfg.Pipeline.OCRTimeout)
	defer cancel()

	ocrCfg := app.OCRConfig(cfg)
	raster := ocr.NewRasterizer(ocrCfg, nil, logger)
	text := ocr.NewTextExtractor(ocr.NewTesseract(ocrCfg, nil, logger), ocrCfg, logger)

	start := time.Now()
	kind := constants.KindFor("", filepath.Ext(path))
	pages, err := raster.Rasterize(ctx, path, kind)
	if err != nil {
		logger.Error("rasterize failed", "path", path, "error", err)
		os.Exit(1)
	}
	res, err := text.Extract(ctx, pages)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	failed := make([]int, 0, len(res.PageErrors))
	for _, pe := range res.PageErrors {
		failed = append(failed, pe.Page)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"path":         path,
		"kind":         kind,
		"pages":        res.Pages,
		"failed_pages": failed,
		"duration_ms":  time.Since(start).Milliseconds(),
		"text":         res.Text,
	})
}
