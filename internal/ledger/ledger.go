// Package ledger appends processed invoices to the tabular ledger.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

// Header names the ledger columns in row order.
var Header = []string{"Supplier", "Date", "Total", "VAT", "Link"}

// Appender is the ledger collaborator. AppendRow must add the values as one
// row atomically with respect to concurrent callers.
type Appender interface {
	AppendRow(ctx context.Context, values []any) error
}

// Row is one ledger entry.
type Row struct {
	Supplier string
	Date     string
	Total    llm.Value
	VAT      llm.Value
	Link     string
}

// NewRow pairs an extracted record with its published link.
func NewRow(rec llm.InvoiceRecord, link string) Row {
	return Row{Supplier: rec.Supplier, Date: rec.Date, Total: rec.Total, VAT: rec.VAT, Link: link}
}

// Values returns the cells in column order; numbers stay numeric.
func (r Row) Values() []any {
	return []any{r.Supplier, r.Date, r.Total.Cell(), r.VAT.Cell(), r.Link}
}

// WriteError reports a failed append. The published file stays in storage.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger append: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer appends rows through an Appender.
type Writer struct {
	appender Appender
	logger   *slog.Logger
}

func NewWriter(appender Appender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{appender: appender, logger: logger}
}

// Append writes (supplier, date, total, vat, link) as a single row.
func (w *Writer) Append(ctx context.Context, rec llm.InvoiceRecord, link string) error {
	log := common.LoggerFrom(ctx, w.logger)
	start := time.Now()
	row := NewRow(rec, link)
	if err := w.appender.AppendRow(ctx, row.Values()); err != nil {
		log.Error("ledger.append.failed", "error", err, "link", link)
		return &WriteError{Err: err}
	}
	log.Info("ledger.append.ok",
		"supplier", row.Supplier,
		"link", link,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
