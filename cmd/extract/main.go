package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
	"github.com/joseph-ayodele/invoice-intake/internal/naming"
)

func main() {
	os.Exit(run())
}

// run reads OCR text from a file (or "-" for stdin) and prints the
// extracted record, repeated n times to check determinism.
func run() int {
	cfg := common.LoadConfig()
	logger := cfg.NewLogger()

	if len(os.Args) < 2 {
		logger.Error("usage: extract <text-file|-> [times]")
		return 2
	}
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	var (
		text []byte
		err  error
	)
	if os.Args[1] == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(os.Args[1])
	}
	if err != nil {
		logger.Error("read input", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(times)*cfg.Pipeline.ModelTimeout)
	defer cancel()

	client, err := app.ModelClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("model client", "error", err)
		return 2
	}
	if c, ok := client.(io.Closer); ok {
		defer c.Close()
	}
	extractor := llm.NewExtractor(client, cfg.LLM.Provider, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	exit := 0
	for i := 1; i <= times; i++ {
		rec, raw, err := extractor.Extract(ctx, string(text))
		out := map[string]any{"attempt": i, "raw": string(raw)}
		if err != nil {
			var pe *llm.ExtractionParseError
			out["error"] = err.Error()
			out["parse_error"] = errors.As(err, &pe)
			exit = 1
		} else {
			out["record"] = rec
			out["name"] = naming.Canonical(rec, constants.KindImage)
		}
		_ = enc.Encode(out)
	}
	return exit
}

