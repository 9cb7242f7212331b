package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the unambiguous layouts rewritten to ISO-8601.
// Day/month order is never guessed for slash-separated dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"2 January 2006",
	"January 2, 2006",
	time.RFC3339,
}

// ParseInvoiceRecord decodes a model response into an InvoiceRecord.
// It fails with ExtractionParseError when raw is not valid JSON or not an
// object; missing or null keys default to the empty string.
func ParseInvoiceRecord(raw []byte) (InvoiceRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return InvoiceRecord{}, &ExtractionParseError{Raw: string(raw), Err: errors.New("response is not valid JSON")}
	}
	schema, err := compiledResponseSchema()
	if err != nil {
		return InvoiceRecord{}, fmt.Errorf("response schema: %w", err)
	}
	if err := validateWith(schema, trimmed); err != nil {
		return InvoiceRecord{}, &ExtractionParseError{Raw: string(raw), Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return InvoiceRecord{}, &ExtractionParseError{Raw: string(raw), Err: err}
	}

	return InvoiceRecord{
		Supplier: stringField(m["supplier"]),
		Date:     NormalizeDate(stringField(m["date"])),
		Total:    valueField(m["total"]),
		VAT:      valueField(m["vat"]),
	}, nil
}

// NormalizeDate rewrites s as YYYY-MM-DD when its trimmed form matches a
// known layout and returns s unchanged when it does not.
func NormalizeDate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func valueField(v any) Value {
	switch t := v.(type) {
	case nil:
		return Text("")
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return Text(t.String())
	case string:
		return Text(t)
	default:
		return Text(stringField(t))
	}
}
