package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks insightbot/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DocumentStore defines the interface for document bookkeeping.
type DocumentStore interface {
	// Insert records an ingested document. doc.ID must be set.
	Insert(ctx context.Context, doc *DocumentRecord) error
	// GetByID returns ErrNotFound if the document does not exist.
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)
	// GetByHash finds a previously ingested upload with identical bytes.
	// Returns ErrNotFound if none exists.
	GetByHash(ctx context.Context, hash string) (*DocumentRecord, error)
	// Delete removes a document row. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
	// Count returns the number of recorded documents.
	Count(ctx context.Context) (int, error)
}

// DocumentRepo implements DocumentStore on SQLite.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = "id, filename, content_type, file_size, hash, chunk_count, created_at"

// Insert records an ingested document.
func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO documents (id, filename, content_type, file_size, hash, chunk_count) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Filename, doc.ContentType, doc.FileSize, doc.Hash, doc.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID gets a document by its ID.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// GetByHash gets the oldest document with the given content hash.
func (r *DocumentRepo) GetByHash(ctx context.Context, hash string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE hash = ? ORDER BY created_at, rowid LIMIT 1", hash)
	return scanDocument(row)
}

// Delete removes a document row.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of recorded documents.
func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func scanDocument(row *sql.Row) (*DocumentRecord, error) {
	var doc DocumentRecord
	err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.FileSize, &doc.Hash, &doc.ChunkCount, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return &doc, nil
}
