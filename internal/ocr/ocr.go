// Package ocr turns inbound documents into text: the Rasterizer splits a
// paginated document into page images and the TextExtractor runs an OCR
// Engine over each page.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang        string // tesseract language hint, default "rus+eng"
	DPI         int    // rasterization DPI for paginated input, default 300
	MaxPages    int    // 0 = no limit
	Concurrency int    // pages recognized in parallel, default 4

	TessdataDir string
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Lang == "" {
		c.Lang = "rus+eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// PageImage is one rendered page. Number is 1-based and follows document order.
type PageImage struct {
	Number int
	Data   []byte
}

// Engine recognizes the text on a single encoded image.
type Engine interface {
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}

// ConversionError reports a paginated document that could not be parsed or rendered.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// PageError is a recoverable OCR failure on one page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("ocr page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Tesseract is the Engine backed by the tesseract CLI.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Tesseract{cfg: cfg.withDefaults(), runner: runner, logger: logger}
}

// Recognize writes image to a scratch file and runs
// `tesseract <file> stdout -l <lang> [--tessdata-dir <dir>]`.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("tesseract: empty image")
	}
	if lang == "" {
		lang = t.cfg.Lang
	}

	f, err := os.CreateTemp("", "ocr-page-*")
	if err != nil {
		return "", fmt.Errorf("tesseract: create temp: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("ocr.temp.remove_failed", "path", path, "error", err)
		}
	}()
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("tesseract: write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("tesseract: close temp: %w", err)
	}

	args := []string{path, "stdout", "-l", lang}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	return Normalize(string(out)), nil
}
