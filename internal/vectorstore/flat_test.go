package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func chunk(doc string, i int, text string) Chunk {
	return Chunk{ID: fmt.Sprintf("%s_%d", doc, i), DocumentID: doc, ChunkIndex: i, Text: text, Filename: doc + ".txt"}
}

func seededIndex(t *testing.T, dir string) *FlatIndex {
	t.Helper()
	idx, err := OpenFlatIndex(dir, 2, nil)
	if err != nil {
		t.Fatalf("OpenFlatIndex() error = %v", err)
	}
	err = idx.Insert(context.Background(),
		[][]float32{{1, 0}, {0.8, 0.6}, {0, 1}},
		[]Chunk{chunk("a", 0, "alpha"), chunk("a", 1, "beta"), chunk("b", 0, "gamma")},
	)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return idx
}

func TestFlatIndex_SearchOrdinals_PadsWithNoMatch(t *testing.T) {
	idx := seededIndex(t, "")

	got, err := idx.SearchOrdinals([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("SearchOrdinals() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("SearchOrdinals() returned %d matches, want 5", len(got))
	}
	wantOrdinals := []int{0, 1, 2, NoMatch, NoMatch}
	for i, m := range got {
		if m.Ordinal != wantOrdinals[i] {
			t.Errorf("match[%d].Ordinal = %d, want %d", i, m.Ordinal, wantOrdinals[i])
		}
	}
}

func TestFlatIndex_Search(t *testing.T) {
	idx := seededIndex(t, "")
	ctx := context.Background()

	tests := []struct {
		name      string
		query     []float32
		k         int
		threshold float32
		wantIDs   []string
	}{
		{name: "all above zero threshold", query: []float32{1, 0}, k: 10, threshold: 0, wantIDs: []string{"a_0", "a_1", "b_0"}},
		{name: "threshold filters low scores", query: []float32{1, 0}, k: 10, threshold: 0.7, wantIDs: []string{"a_0", "a_1"}},
		{name: "k limits results", query: []float32{0, 1}, k: 1, threshold: 0, wantIDs: []string{"b_0"}},
		{name: "nothing passes threshold", query: []float32{-1, -1}, k: 3, threshold: 0.1, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Search(ctx, tt.query, tt.k, tt.threshold)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(hits) != len(tt.wantIDs) {
				t.Fatalf("Search() returned %d hits, want %d", len(hits), len(tt.wantIDs))
			}
			for i, h := range hits {
				if h.Chunk.ID != tt.wantIDs[i] {
					t.Errorf("hit[%d] = %s, want %s", i, h.Chunk.ID, tt.wantIDs[i])
				}
				if h.Score < tt.threshold {
					t.Errorf("hit[%d] score %v below threshold %v", i, h.Score, tt.threshold)
				}
				if i > 0 && h.Score > hits[i-1].Score {
					t.Errorf("hits not in descending order at %d", i)
				}
			}
		})
	}
}

func TestFlatIndex_Search_EmptyIndex(t *testing.T) {
	idx := NewFlatIndex(2, nil)
	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search() on empty index returned %d hits", len(hits))
	}
}

func TestFlatIndex_Insert_Validation(t *testing.T) {
	idx := NewFlatIndex(2, nil)
	ctx := context.Background()

	if err := idx.Insert(ctx, [][]float32{{1, 0}}, nil); err == nil {
		t.Error("Insert() with mismatched lengths should fail")
	}
	err := idx.Insert(ctx, [][]float32{{1, 0, 0}}, []Chunk{chunk("a", 0, "x")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Insert() error = %v, want ErrDimensionMismatch", err)
	}
	if n, _ := idx.ChunkCount(ctx); n != 0 {
		t.Errorf("failed insert left %d chunks", n)
	}
}

func TestFlatIndex_Counts(t *testing.T) {
	idx := seededIndex(t, "")
	ctx := context.Background()

	if n, _ := idx.ChunkCount(ctx); n != 3 {
		t.Errorf("ChunkCount() = %d, want 3", n)
	}
	if n, _ := idx.DocumentCount(ctx); n != 2 {
		t.Errorf("DocumentCount() = %d, want 2", n)
	}
}

func TestFlatIndex_DeleteDocument_KeepsVectors(t *testing.T) {
	idx := seededIndex(t, "")
	ctx := context.Background()

	removed, err := idx.DeleteDocument(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteDocument() removed %d, want 2", removed)
	}
	if n, _ := idx.ChunkCount(ctx); n != 1 {
		t.Errorf("ChunkCount() = %d, want 1", n)
	}
	if n, _ := idx.DocumentCount(ctx); n != 1 {
		t.Errorf("DocumentCount() = %d, want 1", n)
	}
	if idx.VectorCount() != 3 {
		t.Errorf("VectorCount() = %d, want 3 (vectors are not removed)", idx.VectorCount())
	}

	// The dangling vectors score highest but never surface.
	hits, err := idx.Search(ctx, []float32{1, 0}, 3, -1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "b_0" {
		t.Errorf("Search() after delete = %+v, want only b_0", hits)
	}

	if removed, _ := idx.DeleteDocument(ctx, "missing"); removed != 0 {
		t.Errorf("DeleteDocument(missing) removed %d", removed)
	}
}

func TestFlatIndex_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	idx := seededIndex(t, dir)
	ctx := context.Background()

	if _, err := idx.DeleteDocument(ctx, "b"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	reloaded, err := OpenFlatIndex(dir, 2, nil)
	if err != nil {
		t.Fatalf("OpenFlatIndex() error = %v", err)
	}
	if n, _ := reloaded.ChunkCount(ctx); n != 2 {
		t.Errorf("reloaded ChunkCount() = %d, want 2", n)
	}
	if reloaded.VectorCount() != 3 {
		t.Errorf("reloaded VectorCount() = %d, want 3", reloaded.VectorCount())
	}
	hits, err := reloaded.Search(ctx, []float32{0.8, 0.6}, 1, 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ID != "a_1" || hits[0].Chunk.Text != "beta" {
		t.Errorf("reloaded Search() = %+v, want a_1", hits)
	}
}

func TestOpenFlatIndex_CorruptPairs(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
		dim   int
	}{
		{
			name: "only vectors artifact",
			setup: func(t *testing.T, dir string) {
				_ = os.Remove(filepath.Join(dir, ChunksFile))
			},
			dim: 2,
		},
		{
			name: "only chunk table",
			setup: func(t *testing.T, dir string) {
				_ = os.Remove(filepath.Join(dir, VectorsFile))
			},
			dim: 2,
		},
		{
			name: "truncated vectors",
			setup: func(t *testing.T, dir string) {
				path := filepath.Join(dir, VectorsFile)
				data, _ := os.ReadFile(path)
				_ = os.WriteFile(path, data[:len(data)-4], 0644)
			},
			dim: 2,
		},
		{
			name: "garbled chunk table",
			setup: func(t *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, ChunksFile), []byte("{"), 0644)
			},
			dim: 2,
		},
		{
			name:  "configured dimension differs",
			setup: func(t *testing.T, dir string) {},
			dim:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			seededIndex(t, dir)
			tt.setup(t, dir)

			idx, err := OpenFlatIndex(dir, tt.dim, nil)
			if !errors.Is(err, ErrIndexLoad) {
				t.Fatalf("OpenFlatIndex() error = %v, want ErrIndexLoad", err)
			}
			if idx == nil {
				t.Fatal("OpenFlatIndex() must return a usable empty index")
			}
			if n, _ := idx.ChunkCount(context.Background()); n != 0 {
				t.Errorf("ChunkCount() = %d, want 0", n)
			}
			if idx.Dimension() != tt.dim {
				t.Errorf("Dimension() = %d, want %d", idx.Dimension(), tt.dim)
			}
			for _, name := range []string{VectorsFile, ChunksFile} {
				if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
					t.Errorf("%s still in place after failed load", name)
				}
			}
			if moved, _ := filepath.Glob(filepath.Join(dir, "*"+CorruptSuffix+"*")); len(moved) == 0 {
				t.Error("unreadable artifacts were not moved aside")
			}
		})
	}
}

func TestOpenFlatIndex_CorruptPairSurvivesNextInsert(t *testing.T) {
	dir := t.TempDir()
	seededIndex(t, dir)
	staleVectors, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		t.Fatal(err)
	}
	// A crash between the two renames leaves the old chunk table next to new vectors.
	if err := os.WriteFile(filepath.Join(dir, ChunksFile), []byte(`{"dimension":2,"ordinals":["x_0"],"chunks":{}}`), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := OpenFlatIndex(dir, 2, nil)
	if !errors.Is(err, ErrIndexLoad) {
		t.Fatalf("OpenFlatIndex() error = %v, want ErrIndexLoad", err)
	}
	if err := idx.Insert(context.Background(), [][]float32{{1, 0}}, []Chunk{chunk("new", 0, "fresh")}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	moved, _ := filepath.Glob(filepath.Join(dir, VectorsFile+CorruptSuffix+"*"))
	if len(moved) != 1 {
		t.Fatalf("moved vectors = %v, want one file", moved)
	}
	kept, err := os.ReadFile(moved[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(kept) != string(staleVectors) {
		t.Error("moved-aside vectors were modified")
	}

	reloaded, err := OpenFlatIndex(dir, 2, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if reloaded.VectorCount() != 1 {
		t.Errorf("reopened VectorCount() = %d, want 1", reloaded.VectorCount())
	}
}

func TestOpenFlatIndex_NoArtifacts(t *testing.T) {
	idx, err := OpenFlatIndex(t.TempDir(), 4, nil)
	if err != nil {
		t.Fatalf("OpenFlatIndex() error = %v", err)
	}
	if idx.VectorCount() != 0 {
		t.Errorf("VectorCount() = %d, want 0", idx.VectorCount())
	}
}

func TestFlatIndex_ConcurrentInsertAndSearch(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenFlatIndex(dir, 2, nil)
	if err != nil {
		t.Fatalf("OpenFlatIndex() error = %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", w)
			_ = idx.Insert(ctx, [][]float32{{1, 0}, {0, 1}}, []Chunk{chunk(doc, 0, "x"), chunk(doc, 1, "y")})
		}(w)
		go func() {
			defer wg.Done()
			_, _ = idx.Search(ctx, []float32{1, 0}, 5, 0)
		}()
	}
	wg.Wait()

	if n, _ := idx.ChunkCount(ctx); n != 16 {
		t.Errorf("ChunkCount() = %d, want 16", n)
	}
	reloaded, err := OpenFlatIndex(dir, 2, nil)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if reloaded.VectorCount() != 16 {
		t.Errorf("persisted VectorCount() = %d, want 16", reloaded.VectorCount())
	}
}
