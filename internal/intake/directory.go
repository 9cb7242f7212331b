package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Failed  uint32
}

// ScanDir walks root and returns the supported invoice files in lexical
// order. Hidden entries are skipped when skipHidden is set.
func ScanDir(root string, skipHidden bool) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, errors.New("root path is required")
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path) {
			return nil
		}
		stats.Matched++
		files = append(files, path)
		return nil
	})
	if err != nil {
		return files, stats, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(files)
	return files, stats, nil
}

// DirSource emits every supported file under Root once, then returns.
type DirSource struct {
	Root       string
	SkipHidden bool
	Logger     *slog.Logger
}

func (s DirSource) Run(ctx context.Context, handle Handler) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	files, stats, err := ScanDir(s.Root, s.SkipHidden)
	if err != nil {
		return err
	}
	logger.Info("intake.dir.scanned", "root", s.Root, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		env, err := readEnvelope(path)
		if err != nil {
			logger.Error("intake.dir.read_failed", "path", path, "error", err)
			continue
		}
		handle(ctx, env)
	}
	return nil
}

func readEnvelope(path string) (Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Data:      data,
		MimeType:  mimeByExt(path),
		Filename:  filepath.Base(path),
		RequestID: "file:" + path,
	}, nil
}
