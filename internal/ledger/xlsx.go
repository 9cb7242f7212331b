package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Invoices"

var _ Appender = (*XLSXAppender)(nil)

// XLSXAppender appends rows to a local workbook. A local file has no atomic
// append, so rows are serialized with a mutex; one process should own the file.
type XLSXAppender struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewXLSXAppender(path string, logger *slog.Logger) *XLSXAppender {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXAppender{path: path, logger: logger}
}

func (a *XLSXAppender) AppendRow(ctx context.Context, values []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			a.logger.Warn("ledger.xlsx.close_failed", "path", a.path, "error", err)
		}
	}()

	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		return fmt.Errorf("xlsx read rows: %w", err)
	}
	row := len(rows) + 1
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
			return fmt.Errorf("xlsx set %s: %w", cell, err)
		}
	}
	if err := f.SaveAs(a.path); err != nil {
		return fmt.Errorf("xlsx save: %w", err)
	}
	a.logger.Debug("ledger.xlsx.appended", "path", a.path, "row", row)
	return nil
}

// Rows returns every data row below the header as display strings.
func (a *XLSXAppender) Rows() ([][]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := excelize.OpenFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

// open loads the workbook, creating it with a header row when missing.
func (a *XLSXAppender) open() (*excelize.File, error) {
	if _, err := os.Stat(a.path); err == nil {
		f, err := excelize.OpenFile(a.path)
		if err != nil {
			return nil, fmt.Errorf("xlsx open: %w", err)
		}
		if idx, _ := f.GetSheetIndex(xlsxSheet); idx == -1 {
			_ = f.Close()
			return nil, fmt.Errorf("xlsx %s has no %q sheet", a.path, xlsxSheet)
		}
		return f, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("xlsx stat: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}
	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(xlsxSheet, cell, h)
	}
	_ = f.SetColWidth(xlsxSheet, "A", "A", 32) // supplier
	_ = f.SetColWidth(xlsxSheet, "B", "B", 14) // date
	_ = f.SetColWidth(xlsxSheet, "C", "D", 14) // amounts
	_ = f.SetColWidth(xlsxSheet, "E", "E", 60) // link
	a.logger.Info("ledger.xlsx.created", "path", a.path)
	return f, nil
}
