package storage

import (
	"context"
	"errors"
	"testing"
)

func TestDocumentRepo_InsertAndGet(t *testing.T) {
	repo := NewDocumentRepo(newTestDB(t))
	ctx := context.Background()

	doc := &DocumentRecord{
		ID:          "doc-1",
		Filename:    "report.md",
		ContentType: "text/markdown",
		FileSize:    42,
		Hash:        "abc123",
		ChunkCount:  3,
	}
	if err := repo.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Filename != "report.md" || got.ChunkCount != 3 || got.FileSize != 42 || got.Hash != "abc123" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("GetByID() CreatedAt should be set")
	}

	byHash, err := repo.GetByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if byHash.ID != "doc-1" {
		t.Errorf("GetByHash() ID = %q, want doc-1", byHash.ID)
	}
}

func TestDocumentRepo_NotFound(t *testing.T) {
	repo := NewDocumentRepo(newTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "get by id", call: func() error { _, err := repo.GetByID(ctx, "missing"); return err }},
		{name: "get by hash", call: func() error { _, err := repo.GetByHash(ctx, "missing"); return err }},
		{name: "delete", call: func() error { return repo.Delete(ctx, "missing") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDocumentRepo_DeleteAndCount(t *testing.T) {
	repo := NewDocumentRepo(newTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := repo.Insert(ctx, &DocumentRecord{ID: id, Filename: id + ".txt", ContentType: "text/plain", Hash: id}); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2", n, err)
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	n, err = repo.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() after delete = %d, %v; want 1", n, err)
	}
	if _, err := repo.GetByID(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_DuplicateID(t *testing.T) {
	repo := NewDocumentRepo(newTestDB(t))
	ctx := context.Background()

	doc := &DocumentRecord{ID: "dup", Filename: "x.txt", ContentType: "text/plain", Hash: "h"}
	if err := repo.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.Insert(ctx, doc); err == nil {
		t.Error("Insert() with duplicate ID should fail")
	}
}
