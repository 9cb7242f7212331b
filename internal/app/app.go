// Package app wires the configured backends into a pipeline.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/gcp"
	"github.com/joseph-ayodele/invoice-intake/internal/ledger"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-intake/internal/llm/vertex"
	"github.com/joseph-ayodele/invoice-intake/internal/ocr"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
	"github.com/joseph-ayodele/invoice-intake/internal/repository"
	"github.com/joseph-ayodele/invoice-intake/internal/storage"
)

// App holds the constructed pipeline and everything that must be closed.
type App struct {
	Orchestrator *pipeline.Orchestrator
	Journal      *repository.Journal // nil when JOURNAL_DSN is empty
	DB           *repository.DB

	logger  *slog.Logger
	closers []func() error
}

// Build constructs every collaborator selected by cfg.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}

	ocrCfg := OCRConfig(cfg)
	raster := ocr.NewRasterizer(ocrCfg, nil, logger)
	text := ocr.NewTextExtractor(ocr.NewTesseract(ocrCfg, nil, logger), ocrCfg, logger)

	fields, err := a.fieldExtractor(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	store, container, err := a.store(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	appender, err := LedgerAppender(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := pipeline.Deps{
		Rasterizer:     raster,
		TextExtractor:  text,
		FieldExtractor: fields,
		Publisher:      storage.NewPublisher(store, container, logger),
		Ledger:         ledger.NewWriter(appender, logger),
	}
	if cfg.Journal.DSN != "" {
		db, err := repository.Open(ctx, repository.Config{DSN: cfg.Journal.DSN}, logger)
		if err != nil {
			a.Close()
			return nil, common.WrapError(err, "journal")
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(logger); return nil })
		j, err := repository.NewJournal(ctx, db, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Journal = j
		deps.Journal = j
	}

	a.Orchestrator = pipeline.NewOrchestrator(deps, logger,
		pipeline.WithTimeouts(pipeline.TimeoutsFrom(cfg.Pipeline)))
	logger.Info("app.built", "config", cfg.String())
	return a, nil
}

// Close releases clients in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("app.close.failed", "error", err)
		}
	}
	a.closers = nil
}

// OCRConfig maps the OCR section of cfg onto the ocr package.
func OCRConfig(cfg *common.Config) ocr.Config {
	return ocr.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.Lang,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		Concurrency: cfg.OCR.Concurrency,
		TessdataDir: cfg.OCR.TessdataDir,
	}
}

func (a *App) fieldExtractor(ctx context.Context, cfg *common.Config) (*llm.Extractor, error) {
	client, err := ModelClient(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if c, ok := client.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	return llm.NewExtractor(client, cfg.LLM.Provider, a.logger), nil
}

// ModelClient builds the configured language-model client.
func ModelClient(ctx context.Context, cfg *common.Config, logger *slog.Logger) (llm.ModelClient, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger), nil
	case "vertex":
		opts := gcp.ClientOptions(cfg.Storage.CredentialsFile, cfg.Storage.CredentialsJSON)
		return vertex.NewClient(ctx, vertex.Config{
			Project:     cfg.LLM.VertexProject,
			Location:    cfg.LLM.VertexLocation,
			Model:       cfg.LLM.VertexModel,
			Temperature: cfg.LLM.Temperature,
		}, logger, opts...)
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown LLM_PROVIDER "+cfg.LLM.Provider, common.ErrInvalidInput)
}

func (a *App) store(ctx context.Context, cfg *common.Config) (storage.Store, string, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case "drive":
		s, err := storage.NewDriveStore(ctx, a.logger, gcp.ClientOptions(sc.CredentialsFile, sc.CredentialsJSON, gcp.ScopeDrive)...)
		return s, sc.FolderID, err
	case "gcs":
		s, err := storage.NewGCSStore(ctx, a.logger, gcp.ClientOptions(sc.CredentialsFile, sc.CredentialsJSON)...)
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, s.Close)
		return s, sc.GCSBucket, nil
	case "s3":
		s, err := storage.NewS3Store(ctx, sc.AWSRegion, a.logger)
		return s, sc.S3Bucket, err
	}
	return nil, "", common.NewAppError("CONFIG_ERROR", "unknown STORAGE_BACKEND "+sc.Backend, common.ErrInvalidInput)
}

// LedgerAppender builds the configured ledger backend.
func LedgerAppender(ctx context.Context, cfg *common.Config, logger *slog.Logger) (ledger.Appender, error) {
	lc := cfg.Ledger
	switch lc.Backend {
	case "sheets":
		opts := gcp.ClientOptions(cfg.Storage.CredentialsFile, cfg.Storage.CredentialsJSON, gcp.ScopeSpreadsheets)
		return ledger.NewSheetsAppender(ctx, lc.SpreadsheetID, lc.SheetRange, opts...)
	case "xlsx":
		if lc.XLSXPath == "" {
			return nil, errors.New("LEDGER_XLSX_PATH is required for the xlsx ledger")
		}
		return ledger.NewXLSXAppender(lc.XLSXPath, logger), nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown LEDGER_BACKEND "+lc.Backend, common.ErrInvalidInput)
}
