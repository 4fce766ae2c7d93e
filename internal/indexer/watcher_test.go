package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingIngester) Supports(filename string) bool {
	return DefaultExtractors().Supports(filename)
}

func (r *recordingIngester) IngestFile(_ context.Context, path string, _ map[string]string) (*IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.err != nil {
		return nil, r.err
	}
	return &IngestResult{DocumentID: "doc", ChunkCount: 1}, nil
}

func (r *recordingIngester) ingested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcher_Flush(t *testing.T) {
	ing := &recordingIngester{}
	w := NewWatcher(ing, t.TempDir(), time.Second, nil)

	now := time.Now()
	pending := map[string]time.Time{
		"/inbox/quiet.txt": now.Add(-2 * time.Second),
		"/inbox/busy.txt":  now.Add(-100 * time.Millisecond),
	}
	w.flush(context.Background(), pending, now)

	got := ing.ingested()
	if len(got) != 1 || got[0] != "/inbox/quiet.txt" {
		t.Errorf("flush() ingested %v, want only quiet.txt", got)
	}
	if _, ok := pending["/inbox/busy.txt"]; !ok || len(pending) != 1 {
		t.Errorf("pending = %v, want busy.txt kept", pending)
	}
}

func TestWatcher_Flush_ErrorDropsPath(t *testing.T) {
	ing := &recordingIngester{err: errors.New("boom")}
	w := NewWatcher(ing, t.TempDir(), time.Millisecond, nil)

	pending := map[string]time.Time{"/inbox/a.txt": time.Now().Add(-time.Second)}
	w.flush(context.Background(), pending, time.Now())

	if len(pending) != 0 {
		t.Errorf("pending = %v, want failed path dropped", pending)
	}
}

func TestWatcher_Run_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := NewWatcher(ing, dir, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte("# hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(ing.ingested()) == 0 {
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	got := ing.ingested()
	if len(got) != 1 || filepath.Base(got[0]) != "report.md" {
		t.Errorf("ingested %v, want only report.md", got)
	}
}

func TestWatcher_Run_MissingDir(t *testing.T) {
	w := NewWatcher(&recordingIngester{}, filepath.Join(t.TempDir(), "nope"), 0, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Error("Run() on a missing directory should fail")
	}
}
