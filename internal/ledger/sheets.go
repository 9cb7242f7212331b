package ledger

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ Appender = (*SheetsAppender)(nil)

// SheetsAppender appends to a Google Sheets spreadsheet. values.append is
// atomic per call, so concurrent runs never interleave partial rows.
type SheetsAppender struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetRange    string
}

func NewSheetsAppender(ctx context.Context, spreadsheetID, sheetRange string, opts ...option.ClientOption) (*SheetsAppender, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if sheetRange == "" {
		sheetRange = "Sheet1"
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewService: %w", err)
	}
	return &SheetsAppender{svc: svc, spreadsheetID: spreadsheetID, sheetRange: sheetRange}, nil
}

func (a *SheetsAppender) AppendRow(ctx context.Context, values []any) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := a.svc.Spreadsheets.Values.Append(a.spreadsheetID, a.sheetRange, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets values.append: %w", err)
	}
	return nil
}
