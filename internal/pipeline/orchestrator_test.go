package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/ledger"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/ocr"
	"github.com/joseph-ayodele/invoice-intake/internal/repository"
	"github.com/joseph-ayodele/invoice-intake/internal/storage"
)

const acmeReply = `{"supplier":"ACME Corp","date":"2024-05-01","total":120.50,"vat":20.00}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pathRecorder wraps a Rasterizer and remembers the materialized path.
type pathRecorder struct {
	next  Rasterizer
	path  string
	alive bool
}

func (p *pathRecorder) Rasterize(ctx context.Context, path string, kind constants.DocumentKind) ([]ocr.PageImage, error) {
	p.path = path
	_, err := os.Stat(path)
	p.alive = err == nil
	return p.next.Rasterize(ctx, path, kind)
}

type fixedPages []ocr.PageImage

func (f fixedPages) Rasterize(context.Context, string, constants.DocumentKind) ([]ocr.PageImage, error) {
	return f, nil
}

type pageEngine struct {
	texts map[string]string
	fail  map[string]bool
}

func (e pageEngine) Recognize(_ context.Context, image []byte, _ string) (string, error) {
	if e.fail[string(image)] {
		return "", errors.New("tesseract crashed")
	}
	if t, ok := e.texts[string(image)]; ok {
		return t, nil
	}
	return string(image), nil
}

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	delay   time.Duration
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.reply, m.err
}

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	permErr   error
	seq       int
}

func (s *memStore) Upload(_ context.Context, data []byte, name, container string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.seq++
	id := fmt.Sprintf("%s/%d/%s", container, s.seq, name)
	s.objects[id] = data
	return id, nil
}

func (s *memStore) SetPublicRead(context.Context, string) error { return s.permErr }

func (s *memStore) Link(id string) string { return "https://files.example/" + id }

type rowSink struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

func (r *rowSink) AppendRow(_ context.Context, values []any) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, values)
	return nil
}

type harness struct {
	raster *pathRecorder
	model  *fakeModel
	store  *memStore
	sink   *rowSink
	orch   *Orchestrator
}

func newHarness(t *testing.T, pages Rasterizer, engine ocr.Engine, journal Journal) *harness {
	t.Helper()
	logger := quietLogger()
	if pages == nil {
		pages = ocr.NewRasterizer(ocr.Config{}, nil, logger)
	}
	if engine == nil {
		engine = pageEngine{texts: map[string]string{"jpeg-bytes": "ACME Corp\n2024-05-01\nTotal: 120.50\nVAT: 20.00"}}
	}
	h := &harness{
		raster: &pathRecorder{next: pages},
		model:  &fakeModel{reply: acmeReply},
		store:  &memStore{},
		sink:   &rowSink{},
	}
	deps := Deps{
		Rasterizer:     h.raster,
		TextExtractor:  ocr.NewTextExtractor(engine, ocr.Config{Concurrency: 2}, logger),
		FieldExtractor: llm.NewExtractor(h.model, "fake", logger),
		Publisher:      storage.NewPublisher(h.store, "folder", logger),
		Ledger:         ledger.NewWriter(h.sink, logger),
		Journal:        journal,
	}
	h.orch = NewOrchestrator(deps, logger, WithTempDir(t.TempDir()), WithTimeouts(Timeouts{Model: time.Second}))
	return h
}

func jpeg() IntakeDocument {
	return IntakeDocument{Data: []byte("jpeg-bytes"), MimeType: "image/jpeg", Filename: "photo.jpg", RequestID: "req-1"}
}

func TestRunACME(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	out := h.orch.Run(context.Background(), jpeg())
	if !out.OK() {
		t.Fatalf("run failed at %s (%s): %v", out.Stage, out.Kind, out.Err)
	}
	if out.Name != "ACME Corp - 2024-05-01 - 120.5.jpg" {
		t.Errorf("Name = %q", out.Name)
	}
	if out.Document != constants.KindImage {
		t.Errorf("Document = %q", out.Document)
	}
	if len(h.store.objects) != 1 {
		t.Fatalf("objects = %d", len(h.store.objects))
	}
	if string(h.store.objects[out.Artifact.ObjectID]) != "jpeg-bytes" {
		t.Errorf("stored bytes differ from the original document")
	}
	want := []any{"ACME Corp", "2024-05-01", 120.5, 20.0, out.Artifact.Link}
	if len(h.sink.rows) != 1 {
		t.Fatalf("rows = %d", len(h.sink.rows))
	}
	for i, v := range want {
		if h.sink.rows[0][i] != v {
			t.Errorf("row col %d = %#v, want %#v", i, h.sink.rows[0][i], v)
		}
	}
	if out.UserMessage() != userMessages[FailureNone] {
		t.Errorf("UserMessage = %q", out.UserMessage())
	}
}

func TestRunRemovesTempFile(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.model.reply = "Sorry, I cannot help"

	h.orch.Run(context.Background(), jpeg())
	if !h.raster.alive {
		t.Fatal("document was not materialized before rasterizing")
	}
	if _, err := os.Stat(h.raster.path); !os.IsNotExist(err) {
		t.Errorf("temp file %s survived the run", h.raster.path)
	}
}

func TestRunParseErrorStopsBeforeStorage(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.model.reply = "Sorry, I cannot help"

	out := h.orch.Run(context.Background(), jpeg())
	if out.Kind != FailureParse || out.Stage != constants.StageExtract || out.State != constants.StateFailed {
		t.Fatalf("outcome = %+v", out)
	}
	if len(h.store.objects) != 0 || len(h.sink.rows) != 0 {
		t.Errorf("parse failure reached storage or ledger")
	}
	if out.UserMessage() != "Произошла ошибка при извлечении данных через AI." {
		t.Errorf("UserMessage = %q", out.UserMessage())
	}
}

func TestRunModelTimeout(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.model.delay = time.Minute

	out := h.orch.Run(context.Background(), jpeg())
	if out.Kind != FailureModel {
		t.Fatalf("Kind = %q, err = %v", out.Kind, out.Err)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("want deadline error, got %v", out.Err)
	}
}

func TestRunUploadFailureSkipsLedger(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.store.uploadErr = errors.New("quota")

	out := h.orch.Run(context.Background(), jpeg())
	if out.Kind != FailureUpload {
		t.Fatalf("Kind = %q", out.Kind)
	}
	if len(h.sink.rows) != 0 {
		t.Errorf("ledger written after failed upload")
	}
}

func TestRunPermissionFailure(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.store.permErr = errors.New("forbidden")

	out := h.orch.Run(context.Background(), jpeg())
	if out.Kind != FailurePermission || out.Stage != constants.StagePublish {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Artifact.ObjectID == "" {
		t.Errorf("orphaned object id should be reported")
	}
	if len(h.sink.rows) != 0 {
		t.Errorf("ledger written after permission failure")
	}
}

func TestRunLedgerFailure(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.sink.err = errors.New("sheet locked")

	out := h.orch.Run(context.Background(), jpeg())
	if out.Kind != FailureLedger || out.Artifact.Link == "" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRunToleratesFailedPage(t *testing.T) {
	pages := fixedPages{{Number: 1, Data: []byte("p1")}, {Number: 2, Data: []byte("p2")}, {Number: 3, Data: []byte("p3")}}
	engine := pageEngine{
		texts: map[string]string{"p1": "ACME Corp", "p3": "Total: 120.50"},
		fail:  map[string]bool{"p2": true},
	}
	h := newHarness(t, pages, engine, nil)
	doc := IntakeDocument{Data: []byte("%PDF-1.4"), MimeType: "application/pdf", Filename: "inv.pdf"}

	out := h.orch.Run(context.Background(), doc)
	if !out.OK() {
		t.Fatalf("run failed: %v", out.Err)
	}
	if len(out.PageErrors) != 1 || out.PageErrors[0].Page != 2 {
		t.Errorf("PageErrors = %+v", out.PageErrors)
	}
	prompt := h.model.prompts[0]
	for _, s := range []string{"ACME Corp", "Total: 120.50"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
	if out.Name != "ACME Corp - 2024-05-01 - 120.5.pdf" {
		t.Errorf("Name = %q", out.Name)
	}
}

func TestRunTwiceCreatesTwoObjectsAndRows(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	a := h.orch.Run(context.Background(), jpeg())
	b := h.orch.Run(context.Background(), jpeg())
	if !a.OK() || !b.OK() {
		t.Fatalf("runs failed: %v / %v", a.Err, b.Err)
	}
	if a.Artifact.ObjectID == b.Artifact.ObjectID || a.RunID == b.RunID {
		t.Errorf("runs share identity: %s %s", a.Artifact.ObjectID, b.Artifact.ObjectID)
	}
	if len(h.store.objects) != 2 || len(h.sink.rows) != 2 {
		t.Errorf("objects = %d rows = %d", len(h.store.objects), len(h.sink.rows))
	}
}

func TestRunRejectsEmptyDocument(t *testing.T) {
	h := newHarness(t, nil, nil, nil)

	out := h.orch.Run(context.Background(), IntakeDocument{Filename: "x.jpg"})
	if out.OK() || out.Stage != constants.StageClassify || out.Kind != FailureConversion {
		t.Fatalf("outcome = %+v", out)
	}
	if h.raster.path != "" {
		t.Errorf("rasterizer called for an empty document")
	}
}

func TestRunRejectsUnsupportedType(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	doc := IntakeDocument{
		Data:     []byte("PK\x03\x04"),
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Filename: "invoice.docx",
	}

	out := h.orch.Run(context.Background(), doc)
	if out.OK() || out.Stage != constants.StageClassify || out.Kind != FailureConversion {
		t.Fatalf("outcome = %+v", out)
	}
	if out.UserMessage() != userMessages[FailureConversion] {
		t.Errorf("message = %q", out.UserMessage())
	}
	if h.raster.path != "" || len(h.store.objects) != 0 || len(h.sink.rows) != 0 {
		t.Errorf("unsupported document reached later stages: raster=%q objects=%d rows=%d",
			h.raster.path, len(h.store.objects), len(h.sink.rows))
	}
}

func TestRunJournal(t *testing.T) {
	ctx := context.Background()
	logger := quietLogger()
	db, err := repository.Open(ctx, repository.Config{DSN: "sqlite::memory:"}, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close(logger) })
	journal, err := repository.NewJournal(ctx, db, logger)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}

	h := newHarness(t, nil, nil, journal)
	ok := h.orch.Run(ctx, jpeg())
	h.sink.err = errors.New("sheet locked")
	failed := h.orch.Run(ctx, jpeg())

	got, err := journal.Get(ctx, ok.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != constants.StateDone || got.Link != ok.Artifact.Link || got.Kind != "image" {
		t.Errorf("ok run = %+v", got)
	}
	got, err = journal.Get(ctx, failed.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != constants.StateFailed || got.FailureKind != "ledger" || got.ObjectID == "" {
		t.Errorf("failed run = %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stage constants.Stage
		err   error
		want  FailureKind
	}{
		{constants.StageRasterize, &ocr.ConversionError{Path: "x", Err: errors.New("bad")}, FailureConversion},
		{constants.StageOCR, context.Canceled, FailureOCR},
		{constants.StageExtract, &llm.ModelCallError{Provider: "p", Err: errors.New("x")}, FailureModel},
		{constants.StageExtract, fmt.Errorf("wrapped: %w", &llm.ExtractionParseError{Err: errors.New("x")}), FailureParse},
		{constants.StageExtract, context.DeadlineExceeded, FailureModel},
		{constants.StagePublish, &storage.UploadError{Name: "n", Err: errors.New("x")}, FailureUpload},
		{constants.StagePublish, &storage.PermissionError{ObjectID: "o", Err: errors.New("x")}, FailurePermission},
		{constants.StageLedger, &ledger.WriteError{Err: errors.New("x")}, FailureLedger},
		{constants.StageLedger, context.DeadlineExceeded, FailureLedger},
	}
	for _, tt := range tests {
		if got := Classify(tt.stage, tt.err); got != tt.want {
			t.Errorf("Classify(%s, %v) = %q, want %q", tt.stage, tt.err, got, tt.want)
		}
	}
}

func TestUserMessagesAreDistinct(t *testing.T) {
	seen := map[string]FailureKind{}
	for kind, msg := range userMessages {
		if other, dup := seen[msg]; dup {
			t.Errorf("%q and %q share a message", kind, other)
		}
		seen[msg] = kind
	}
	if len(userMessages) != 9 {
		t.Errorf("messages = %d, want 9", len(userMessages))
	}
}
