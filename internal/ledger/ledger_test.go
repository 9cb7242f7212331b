package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingAppender struct {
	rows [][]any
	err  error
}

func (r *recordingAppender) AppendRow(_ context.Context, values []any) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, values)
	return nil
}

func acme() llm.InvoiceRecord {
	return llm.InvoiceRecord{Supplier: "ACME Corp", Date: "2024-05-01", Total: llm.Number(120.50), VAT: llm.Number(20.00)}
}

func TestWriterAppendsColumnsInOrder(t *testing.T) {
	app := &recordingAppender{}
	w := NewWriter(app, quietLogger())

	if err := w.Append(context.Background(), acme(), "https://link"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(app.rows) != 1 {
		t.Fatalf("rows = %d", len(app.rows))
	}
	want := []any{"ACME Corp", "2024-05-01", 120.5, 20.0, "https://link"}
	for i, v := range want {
		if app.rows[0][i] != v {
			t.Errorf("col %d = %#v, want %#v", i, app.rows[0][i], v)
		}
	}
}

func TestWriterKeepsRawText(t *testing.T) {
	app := &recordingAppender{}
	rec := llm.InvoiceRecord{Total: llm.Text("120,50 руб."), VAT: llm.Text("")}

	if err := NewWriter(app, quietLogger()).Append(context.Background(), rec, "l"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if app.rows[0][2] != "120,50 руб." || app.rows[0][3] != "" {
		t.Errorf("row = %#v", app.rows[0])
	}
}

func TestWriterError(t *testing.T) {
	app := &recordingAppender{err: errors.New("quota")}

	err := NewWriter(app, quietLogger()).Append(context.Background(), acme(), "l")
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("want WriteError, got %v", err)
	}
}

func TestXLSXAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	a := NewXLSXAppender(path, quietLogger())
	w := NewWriter(a, quietLogger())

	if err := w.Append(context.Background(), acme(), "https://l/1"); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := w.Append(context.Background(), acme(), "https://l/2"); err != nil {
		t.Fatalf("second append: %v", err)
	}

	rows, err := a.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	want := []string{"ACME Corp", "2024-05-01", "120.5", "20", "https://l/1"}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("row 1 col %d = %q, want %q", i, rows[0][i], v)
		}
	}
	if rows[1][4] != "https://l/2" {
		t.Errorf("row 2 link = %q", rows[1][4])
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	header, _ := f.GetCellValue(xlsxSheet, "E1")
	if header != "Link" {
		t.Errorf("E1 = %q, want Link", header)
	}
	typ, _ := f.GetCellType(xlsxSheet, "C2")
	if typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString {
		t.Errorf("numeric total stored as text (type %v)", typ)
	}
}

func TestXLSXAppenderConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	a := NewXLSXAppender(path, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vals := []any{fmt.Sprintf("S%d", i), "d", float64(i), 0.0, "l"}
			if err := a.AppendRow(context.Background(), vals); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := a.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("rows = %d, want 8", len(rows))
	}
	for _, r := range rows {
		if len(r) != 5 {
			t.Errorf("partial row %v", r)
		}
	}
}
