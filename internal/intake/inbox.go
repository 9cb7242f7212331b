package intake

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/invoice-intake/internal/pipeline"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// InboxSource watches a directory for new invoice files. Each file is moved
// to processed/ or failed/ once its run finishes.
type InboxSource struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewInboxSource(dir string, debounce time.Duration, logger *slog.Logger) *InboxSource {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &InboxSource{dir: dir, debounce: debounce, logger: logger, inflight: map[string]struct{}{}}
}

func (s *InboxSource) Run(ctx context.Context, handle Handler) error {
	for _, sub := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			s.logger.Warn("intake.inbox.close_failed", "error", err)
		}
	}()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", s.dir, err)
	}
	s.logger.Info("intake.inbox.watching", "dir", s.dir)

	// Files dropped while the service was down.
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			s.emit(ctx, filepath.Join(s.dir, e.Name()), handle)
		}
	}

	// Writes arrive in bursts; a file is emitted once it has been quiet for debounce.
	pending := map[string]time.Time{}
	tick := time.NewTicker(s.debounce / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && filepath.Dir(e.Name) == filepath.Clean(s.dir) {
				pending[e.Name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("intake.inbox.watch_error", "error", err)
		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) >= s.debounce {
					delete(pending, path)
					s.emit(ctx, path, handle)
				}
			}
		}
	}
}

func (s *InboxSource) emit(ctx context.Context, path string, handle Handler) {
	if !allowed(path) || isHidden(path) {
		return
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return
	}
	s.mu.Lock()
	if _, busy := s.inflight[path]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[path] = struct{}{}
	s.mu.Unlock()

	env, err := readEnvelope(path)
	if err != nil {
		s.logger.Error("intake.inbox.read_failed", "path", path, "error", err)
		s.release(path)
		return
	}
	env.Settle = func(_ context.Context, out pipeline.Outcome) {
		defer s.release(path)
		if out.Kind == pipeline.FailureUnavailable {
			// Not processed; left in the inbox for the next scan.
			s.logger.Warn("intake.inbox.deferred", "path", path, "error", out.Err)
			return
		}
		dest := failedDir
		if out.OK() {
			dest = processedDir
		}
		target := filepath.Join(s.dir, dest, filepath.Base(path))
		if err := os.Rename(path, target); err != nil {
			s.logger.Error("intake.inbox.move_failed", "path", path, "target", target, "error", err)
			return
		}
		s.logger.Info("intake.inbox.settled", "path", path, "target", target, "ok", out.OK(), "kind", out.Kind)
	}
	s.logger.Info("intake.inbox.received", "path", path, "bytes", len(env.Data))
	handle(ctx, env)
}

func (s *InboxSource) release(path string) {
	s.mu.Lock()
	delete(s.inflight, path)
	s.mu.Unlock()
}
