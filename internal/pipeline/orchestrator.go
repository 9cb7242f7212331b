// Package pipeline runs one inbound invoice through every stage, from
// classification to the ledger row.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/naming"
	"github.com/joseph-ayodele/invoice-intake/internal/ocr"
	"github.com/joseph-ayodele/invoice-intake/internal/repository"
	"github.com/joseph-ayodele/invoice-intake/internal/storage"
)

type Rasterizer interface {
	Rasterize(ctx context.Context, path string, kind constants.DocumentKind) ([]ocr.PageImage, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, pages []ocr.PageImage) (ocr.TextResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, data []byte, name string) (storage.PublishedArtifact, error)
}

type LedgerWriter interface {
	Append(ctx context.Context, rec llm.InvoiceRecord, link string) error
}

// Journal receives run state transitions. *repository.Journal implements it.
type Journal interface {
	Start(ctx context.Context, run repository.Run) error
	Transition(ctx context.Context, runID string, state constants.RunState) error
	Finish(ctx context.Context, run repository.Run) error
}

// Deps are the collaborators of an Orchestrator. Journal may be nil.
type Deps struct {
	Rasterizer     Rasterizer
	TextExtractor  TextExtractor
	FieldExtractor llm.FieldExtractor
	Publisher      Publisher
	Ledger         LedgerWriter
	Journal        Journal
}

// Timeouts bound each stage; zero means no stage deadline.
type Timeouts struct {
	Rasterize time.Duration
	OCR       time.Duration
	Model     time.Duration
	Publish   time.Duration
	Ledger    time.Duration
}

// TimeoutsFrom copies the stage deadlines out of the service config.
func TimeoutsFrom(cfg common.PipelineConfig) Timeouts {
	return Timeouts{
		Rasterize: cfg.RasterizeTimeout,
		OCR:       cfg.OCRTimeout,
		Model:     cfg.ModelTimeout,
		Publish:   cfg.PublishTimeout,
		Ledger:    cfg.LedgerTimeout,
	}
}

type Orchestrator struct {
	deps     Deps
	timeouts Timeouts
	tempDir  string
	logger   *slog.Logger
}

type Option func(*Orchestrator)

// WithTempDir sets where documents are materialized for the rasterizer.
func WithTempDir(dir string) Option {
	return func(o *Orchestrator) { o.tempDir = dir }
}

func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) { o.timeouts = t }
}

func NewOrchestrator(deps Deps, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{deps: deps, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the state of a single Run call.
type run struct {
	o     *Orchestrator
	log   *slog.Logger
	out   Outcome
	start time.Time
}

// Run processes doc to completion. It never panics on stage failure; the
// first failing stage ends the run and is described by the Outcome.
func (o *Orchestrator) Run(ctx context.Context, doc IntakeDocument) Outcome {
	runID := uuid.NewString()
	if doc.RequestID == "" {
		doc.RequestID = runID
	}
	ctx = common.WithRunID(common.WithRequestID(ctx, doc.RequestID), runID)
	r := &run{
		o:     o,
		log:   common.LoggerFrom(ctx, o.logger),
		out:   Outcome{RunID: runID, State: constants.StateReceived},
		start: time.Now(),
	}
	r.journalStart(ctx, doc)
	defer r.journalFinish(ctx)

	r.log.Info("pipeline.run.start", "filename", doc.Filename, "mime_type", doc.MimeType, "bytes", len(doc.Data))

	// Classified
	if err := doc.Validate(); err != nil {
		return r.fail(constants.StageClassify, err)
	}
	doc = doc.Classified()
	r.out.Document = doc.Kind
	r.advance(ctx, constants.StateClassified)

	path, release, err := doc.Materialize(o.tempDir, r.log)
	if err != nil {
		return r.fail(constants.StageClassify, err)
	}
	defer release()

	// TextExtracted
	var pages []ocr.PageImage
	err = r.stage(ctx, constants.StageRasterize, o.timeouts.Rasterize, func(ctx context.Context) error {
		var err error
		pages, err = o.deps.Rasterizer.Rasterize(ctx, path, doc.Kind)
		return err
	})
	if err != nil {
		return r.fail(constants.StageRasterize, err)
	}
	var text ocr.TextResult
	err = r.stage(ctx, constants.StageOCR, o.timeouts.OCR, func(ctx context.Context) error {
		var err error
		text, err = o.deps.TextExtractor.Extract(ctx, pages)
		return err
	})
	if err != nil {
		return r.fail(constants.StageOCR, err)
	}
	r.out.PageErrors = text.PageErrors
	r.advance(ctx, constants.StateTextExtracted)

	// FieldsExtracted
	err = r.stage(ctx, constants.StageExtract, o.timeouts.Model, func(ctx context.Context) error {
		var err error
		r.out.Record, r.out.Raw, err = o.deps.FieldExtractor.Extract(ctx, text.Text)
		return err
	})
	if err != nil {
		return r.fail(constants.StageExtract, err)
	}
	r.advance(ctx, constants.StateFieldsExtracted)

	// Named
	r.out.Name = naming.Canonical(r.out.Record, doc.Kind)
	r.log.Info("pipeline.named", "name", r.out.Name)
	r.advance(ctx, constants.StateNamed)

	// Published
	err = r.stage(ctx, constants.StagePublish, o.timeouts.Publish, func(ctx context.Context) error {
		var err error
		r.out.Artifact, err = o.deps.Publisher.Publish(ctx, doc.Data, r.out.Name)
		return err
	})
	if err != nil {
		return r.fail(constants.StagePublish, err)
	}
	r.advance(ctx, constants.StatePublished)

	// Logged
	err = r.stage(ctx, constants.StageLedger, o.timeouts.Ledger, func(ctx context.Context) error {
		return o.deps.Ledger.Append(ctx, r.out.Record, r.out.Artifact.Link)
	})
	if err != nil {
		return r.fail(constants.StageLedger, err)
	}
	r.advance(ctx, constants.StateLogged)

	r.out.State = constants.StateDone
	r.out.Duration = time.Since(r.start)
	r.log.Info("pipeline.run.done",
		"name", r.out.Name,
		"link", r.out.Artifact.Link,
		"failed_pages", len(r.out.PageErrors),
		"duration_ms", r.out.Duration.Milliseconds(),
	)
	return r.out
}

// stage runs fn under its own deadline and logs its duration.
func (r *run) stage(ctx context.Context, stage constants.Stage, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	r.log.Debug("pipeline.stage.done", "stage", stage, "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	return err
}

func (r *run) advance(ctx context.Context, state constants.RunState) {
	r.out.State = state
	if j := r.o.deps.Journal; j != nil {
		if err := j.Transition(ctx, r.out.RunID, state); err != nil {
			r.log.Warn("pipeline.journal.failed", "state", state, "error", err)
		}
	}
}

func (r *run) fail(stage constants.Stage, err error) Outcome {
	r.out.State = constants.StateFailed
	r.out.Stage = stage
	r.out.Kind = Classify(stage, err)
	r.out.Err = err
	r.out.Duration = time.Since(r.start)
	r.log.Error("pipeline.stage.failed",
		"stage", stage,
		"kind", r.out.Kind,
		"error", err,
		"object_id", r.out.Artifact.ObjectID,
		"duration_ms", r.out.Duration.Milliseconds(),
	)
	return r.out
}

func (r *run) journalStart(ctx context.Context, doc IntakeDocument) {
	j := r.o.deps.Journal
	if j == nil {
		return
	}
	err := j.Start(ctx, repository.Run{
		ID:        r.out.RunID,
		RequestID: doc.RequestID,
		Kind:      string(doc.Kind),
		State:     constants.StateReceived,
		StartedAt: r.start,
	})
	if err != nil {
		r.log.Warn("pipeline.journal.failed", "state", constants.StateReceived, "error", err)
	}
}

// journalFinish records the final outcome. It uses a context detached from
// cancellation so a timed-out run is still written down.
func (r *run) journalFinish(ctx context.Context) {
	j := r.o.deps.Journal
	if j == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rec := repository.Run{
		ID:            r.out.RunID,
		Kind:          string(r.out.Document),
		State:         r.out.State,
		FailedStage:   string(r.out.Stage),
		FailureKind:   string(r.out.Kind),
		CanonicalName: r.out.Name,
		ObjectID:      r.out.Artifact.ObjectID,
		Link:          r.out.Artifact.Link,
	}
	if r.out.Err != nil {
		rec.Error = r.out.Err.Error()
	}
	if err := j.Finish(ctx, rec); err != nil {
		r.log.Warn("pipeline.journal.failed", "state", r.out.State, "error", err)
	}
}
