package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/intake"
	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type result struct {
	file string
	out  pipeline.Outcome
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory to process invoices from (required)")
		out     = flag.String("out", "", "write rows to this local XLSX ledger instead of the configured one")
		workers = flag.Int("workers", 0, "parallel runs (defaults to WORKERS)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	if *out != "" {
		cfg.Ledger.Backend = "xlsx"
		cfg.Ledger.XLSXPath = *out
	}
	if *workers > 0 {
		cfg.Queue.Workers = *workers
	}
	logger := cfg.NewLogger()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	queue := async.NewProcessorQueue(a.Orchestrator, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithJobTimeout(cfg.Queue.JobTimeout),
	)

	var (
		mu      sync.Mutex
		results []result
	)
	src := intake.DirSource{Root: *dir, SkipHidden: true, Logger: logger}
	err = src.Run(ctx, func(ctx context.Context, env intake.Envelope) {
		file := env.Filename
		job := async.Job{
			Doc: env.Document(),
			Done: func(_ context.Context, o pipeline.Outcome) {
				mu.Lock()
				results = append(results, result{file: file, out: o})
				mu.Unlock()
			},
		}
		if err := queue.Enqueue(ctx, job); err != nil {
			logger.Error("enqueue", "file", file, "error", err)
		}
	})
	queue.Shutdown(context.Background())
	if err != nil {
		logger.Error("failed to scan directory", "error", err)
		os.Exit(1)
	}

	failures := printSummary(results)
	if *out != "" {
		abs, _ := filepath.Abs(*out)
		fmt.Printf("Ledger: %s\n", abs)
	}
	if failures > 0 {
		os.Exit(1)
	}
}

func printSummary(results []result) int {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tSTATE\tSTAGE\tKIND\tNAME\tLINK")
	failures := 0
	for _, r := range results {
		if !r.out.OK() {
			failures++
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.file, r.out.State, r.out.Stage, r.out.Kind, r.out.Name, r.out.Artifact.Link)
	}
	_ = tw.Flush()
	fmt.Printf("Batch processing complete: %d files, %d failed\n", len(results), failures)
	return failures
}
