package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

// Extractor implements FieldExtractor on top of a ModelClient.
type Extractor struct {
	client   ModelClient
	provider string
	logger   *slog.Logger
}

func NewExtractor(client ModelClient, provider string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, provider: provider, logger: logger}
}

// Extract prompts the model with text and parses its answer. The raw
// response is returned alongside the record, and also on parse failure.
func (e *Extractor) Extract(ctx context.Context, text string) (InvoiceRecord, []byte, error) {
	log := common.LoggerFrom(ctx, e.logger)
	start := time.Now()
	log.Info("llm.extract.start", "provider", e.provider, "text_len", len(text))

	content, err := e.client.Complete(ctx, BuildPrompt(text))
	if err != nil {
		log.Error("llm.extract.call_failed",
			"provider", e.provider,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		var mce *ModelCallError
		if errors.As(err, &mce) {
			return InvoiceRecord{}, nil, err
		}
		return InvoiceRecord{}, nil, &ModelCallError{Provider: e.provider, Err: err}
	}

	raw := []byte(content)
	rec, err := ParseInvoiceRecord(raw)
	if err != nil {
		log.Error("llm.extract.parse_failed",
			"error", err,
			"content", truncate(content, 2048),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return InvoiceRecord{}, raw, err
	}

	log.Info("llm.extract.ok",
		"supplier", rec.Supplier,
		"date", rec.Date,
		"total", rec.Total.String(),
		"vat", rec.VAT.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
