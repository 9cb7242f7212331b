package llm

import (
	"errors"
	"testing"
)

func TestParseInvoiceRecord(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		supplier string
		date     string
		total    string
		totalNum bool
		vat      string
		vatNum   bool
	}{
		{
			name:     "numbers",
			raw:      `{"supplier":"ACME Corp","date":"2024-05-01","total":120.50,"vat":20.00}`,
			supplier: "ACME Corp", date: "2024-05-01",
			total: "120.5", totalNum: true,
			vat: "20", vatNum: true,
		},
		{
			name:     "missing keys default to empty",
			raw:      `{"supplier":"ACME Corp"}`,
			supplier: "ACME Corp",
		},
		{
			name: "nulls default to empty",
			raw:  `{"supplier":null,"date":null,"total":null,"vat":null}`,
		},
		{
			name:     "raw strings kept",
			raw:      `{"supplier":"ООО Ромашка","date":"first of May","total":"120,50 руб.","vat":"без НДС"}`,
			supplier: "ООО Ромашка", date: "first of May",
			total: "120,50 руб.", vat: "без НДС",
		},
		{
			name:     "numeric string stays text",
			raw:      `{"supplier":"A","date":"2024-05-01","total":"120.50","vat":"0"}`,
			supplier: "A", date: "2024-05-01",
			total: "120.50", vat: "0",
		},
		{
			name:     "dotted date normalized",
			raw:      ` {"supplier":"A","date":"01.05.2024","total":1,"vat":0} `,
			supplier: "A", date: "2024-05-01",
			total: "1", totalNum: true,
			vat: "0", vatNum: true,
		},
		{
			name:     "strings kept as received",
			raw:      `{"supplier":"  ACME Corp ","date":" 1.5.2024","total":" 120,50 ","vat":""}`,
			supplier: "  ACME Corp ", date: " 1.5.2024",
			total: " 120,50 ",
		},
		{
			name:     "non-string supplier stringified",
			raw:      `{"supplier":12345,"date":"2024/05/01","total":{"amount":5},"vat":true}`,
			supplier: "12345", date: "2024-05-01",
			total: `{"amount":5}`, vat: "true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseInvoiceRecord([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseInvoiceRecord: %v", err)
			}
			if rec.Supplier != tt.supplier || rec.Date != tt.date {
				t.Errorf("supplier/date = %q/%q, want %q/%q", rec.Supplier, rec.Date, tt.supplier, tt.date)
			}
			if rec.Total.String() != tt.total || rec.Total.IsNumber() != tt.totalNum {
				t.Errorf("total = %q (num=%t), want %q (num=%t)", rec.Total, rec.Total.IsNumber(), tt.total, tt.totalNum)
			}
			if rec.VAT.String() != tt.vat || rec.VAT.IsNumber() != tt.vatNum {
				t.Errorf("vat = %q (num=%t), want %q (num=%t)", rec.VAT, rec.VAT.IsNumber(), tt.vat, tt.vatNum)
			}
		})
	}
}

func TestParseInvoiceRecordRejects(t *testing.T) {
	for _, raw := range []string{
		"Sorry, I cannot help",
		"",
		"```json\n{\"supplier\":\"A\"}\n```",
		`["supplier","date"]`,
		`"just a string"`,
		`42`,
		`{"supplier":"A"`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseInvoiceRecord([]byte(raw))
			var pe *ExtractionParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want ExtractionParseError, got %v", err)
			}
			if pe.Raw != raw {
				t.Errorf("Raw = %q, want %q", pe.Raw, raw)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := map[string]string{
		"2024-05-01":           "2024-05-01",
		" 2024/05/01 ":         "2024-05-01",
		"01.05.2024":           "2024-05-01",
		"1.5.2024":             "1.5.2024",
		"1 May 2024":           "2024-05-01",
		"May 1, 2024":          "2024-05-01",
		"2024-05-01T10:00:00Z": "2024-05-01",
		"05/01/2024":           "05/01/2024",
		" first of May ":       " first of May ",
		"":                     "",
		"  ":                   "  ",
	}
	for in, want := range tests {
		if got := NormalizeDate(in); got != want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValueCell(t *testing.T) {
	if got, ok := Number(120.50).Cell().(float64); !ok || got != 120.5 {
		t.Errorf("Number cell = %v", Number(120.50).Cell())
	}
	if got, ok := Text("n/a").Cell().(string); !ok || got != "n/a" {
		t.Errorf("Text cell = %v", Text("n/a").Cell())
	}
	b, err := Number(20).MarshalJSON()
	if err != nil || string(b) != "20" {
		t.Errorf("MarshalJSON = %s, %v", b, err)
	}
}
