package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileIngester is the part of Pipeline the watcher drives.
type fileIngester interface {
	Supports(filename string) bool
	IngestFile(ctx context.Context, path string, metadata map[string]string) (*IngestResult, error)
}

// Watcher ingests files dropped into an inbox directory. A file is ingested
// once no create or write event has been seen for it for the debounce period.
type Watcher struct {
	ingester fileIngester
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher for dir.
func NewWatcher(ingester fileIngester, dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{ingester: ingester, dir: dir, debounce: debounce, logger: logger}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = fw.Close()
	}()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.InfoContext(ctx, "watching inbox", "dir", w.dir)

	pending := map[string]time.Time{}
	ticker := time.NewTicker(max(w.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || !w.ingester.Supports(name) {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "file watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, pending, now)
		}
	}
}

// flush ingests every pending path that has been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time, now time.Time) {
	for path, last := range pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(pending, path)

		res, err := w.ingester.IngestFile(ctx, path, map[string]string{"source": "inbox"})
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to ingest inbox file", "path", path, "error", err)
			continue
		}
		w.logger.InfoContext(ctx, "ingested inbox file", "path", path,
			"document_id", res.DocumentID, "chunks", res.ChunkCount, "duplicate", res.Duplicate)
	}
}
