package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/invoice-intake/internal/app"
	"github.com/joseph-ayodele/invoice-intake/internal/async"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
	"github.com/joseph-ayodele/invoice-intake/internal/intake"
)

func main() {
	cfg := common.LoadConfig()
	logger := cfg.NewLogger()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if cfg.Telegram.Token == "" && cfg.Inbox.Dir == "" {
		logger.Error("nothing to serve: set TELEGRAM_BOT_TOKEN and/or INBOX_DIR")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	handle := intake.QueueHandler(queue, logger)

	var sources []intake.Source
	if cfg.Telegram.Token != "" {
		tg, err := intake.NewTelegramSource(cfg.Telegram.Token, cfg.Telegram.PollTimeout, logger)
		if err != nil {
			logger.Error("telegram", "error", err)
			os.Exit(1)
		}
		sources = append(sources, tg)
	}
	if cfg.Inbox.Dir != "" {
		sources = append(sources, intake.NewInboxSource(cfg.Inbox.Dir, 0, logger))
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Health.Addr)
	if err != nil {
		logger.Error("listen", "addr", cfg.Health.Addr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("health serving", "addr", cfg.Health.Addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc serve", "error", err)
		}
	}()
	if a.DB != nil {
		go watchJournal(ctx, a, hs)
	}

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src intake.Source) {
			defer wg.Done()
			if err := src.Run(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("intake source stopped", "source", sourceName(src), "error", err)
				stop()
			}
		}(src)
	}

	<-ctx.Done()
	logger.Info("shutting down...")
	hs.Shutdown()
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.JobTimeout)
	defer cancel()
	queue.Shutdown(drainCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

// watchJournal reports NOT_SERVING while the journal database is unreachable.
func watchJournal(ctx context.Context, a *app.App, hs *health.Server) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			status := healthpb.HealthCheckResponse_SERVING
			if err := a.DB.HealthCheck(ctx, 3*time.Second); err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus("journal", status)
		}
	}
}

func sourceName(src intake.Source) string {
	switch src.(type) {
	case *intake.TelegramSource:
		return "telegram"
	case *intake.InboxSource:
		return "inbox"
	}
	return "unknown"
}
