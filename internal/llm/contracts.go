package llm

import (
	"context"
	"encoding/json"
	"strconv"
)

// InvoiceRecord is the fixed-schema result of field extraction. All four
// fields are always populated; a missing key becomes the empty string.
type InvoiceRecord struct {
	Supplier string `json:"supplier"`
	Date     string `json:"date"` // YYYY-MM-DD when parseable, otherwise as given
	Total    Value  `json:"total"`
	VAT      Value  `json:"vat"`
}

// Value holds a money field: a number when the model returned one, otherwise
// the raw text. Text values are never coerced.
type Value struct {
	num   float64
	text  string
	isNum bool
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{num: f, isNum: true} }

// Text returns a raw text Value.
func Text(s string) Value { return Value{text: s} }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.isNum }

// Float returns the numeric value and whether v holds one.
func (v Value) Float() (float64, bool) { return v.num, v.isNum }

// String renders numbers in their shortest form (120.50 -> "120.5").
func (v Value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.text
}

// Cell returns the value as it should be written to a ledger cell.
func (v Value) Cell() any {
	if v.isNum {
		return v.num
	}
	return v.text
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Cell())
}

// ModelClient is the language-model collaborator: one prompt in, raw text out.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FieldExtractor is the interface our pipeline depends on.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (InvoiceRecord, []byte /*raw response*/, error)
}
