// Package intake delivers inbound invoices from Telegram, a watched inbox
// directory or a one-off directory scan.
package intake

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

// Envelope is one received file plus a way to answer its sender.
type Envelope struct {
	Data      []byte
	MimeType  string
	Filename  string
	RequestID string
	// Reply sends text back to whoever submitted the file. May be nil.
	Reply func(ctx context.Context, text string) error
	// Settle runs after the pipeline finished, e.g. to move an inbox file.
	Settle func(ctx context.Context, out pipeline.Outcome)
}

// Document converts the envelope into pipeline input.
func (e Envelope) Document() pipeline.IntakeDocument {
	return pipeline.IntakeDocument{
		Data:      e.Data,
		RequestID: e.RequestID,
		Filename:  e.Filename,
		MimeType:  e.MimeType,
	}
}

// Handler consumes envelopes produced by a Source.
type Handler func(ctx context.Context, env Envelope)

// Source produces envelopes until ctx is done.
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// QueueHandler enqueues each envelope and, once processed, replies with the
// outcome's user message and settles it.
func QueueHandler(q async.Queue, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, env Envelope) {
		done := func(ctx context.Context, out pipeline.Outcome) {
			// The job context may already be past its deadline.
			ctx = context.WithoutCancel(ctx)
			if env.Reply != nil {
				if err := env.Reply(ctx, out.UserMessage()); err != nil {
					logger.Warn("intake.reply.failed", "request_id", env.RequestID, "error", err)
				}
			}
			if env.Settle != nil {
				env.Settle(ctx, out)
			}
		}
		if err := q.Enqueue(ctx, async.Job{Doc: env.Document(), Done: done}); err != nil {
			logger.Error("intake.enqueue.failed", "request_id", env.RequestID, "error", err)
			done(ctx, pipeline.Rejected(err))
		}
	}
}

func allowed(path string) bool {
	return constants.IsAllowedExt(filepath.Ext(path))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// mimeByExt is the media type reported for files read from disk.
func mimeByExt(path string) string {
	switch constants.NormalizeExt(filepath.Ext(path)) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
