package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_query_store.go -package=mocks insightbot/internal/storage QueryStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// QueryStore defines the interface for query history.
type QueryStore interface {
	// Insert stores a completed run. rec.ID must be set.
	Insert(ctx context.Context, rec *QueryRecord) error
	// GetByID returns ErrNotFound if the run does not exist.
	GetByID(ctx context.Context, id string) (*QueryRecord, error)
	// List returns one page of history, newest first, and the total matching count.
	List(ctx context.Context, params ListParams) ([]QueryRecord, int, error)
	// UpdateEvaluation replaces the evaluation of a stored run.
	UpdateEvaluation(ctx context.Context, id string, score float64, rationale string, criteria map[string]float64) error
	// Stats aggregates the whole history.
	Stats(ctx context.Context) (*QueryStats, error)
}

// QueryRepo implements QueryStore on SQLite. Slice and map fields are stored as JSON.
type QueryRepo struct {
	db *sql.DB
}

// NewQueryRepo creates a new QueryRepo.
func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

const queryColumns = `id, session_id, query_text, answer, sources, key_points, citations, confidence,
	evaluation_score, rationale, criteria, execution_time, trace, errors, created_at`

// Insert stores a completed run.
func (r *QueryRepo) Insert(ctx context.Context, rec *QueryRecord) error {
	enc := jsonColumns{}
	sources := enc.marshal(nonNil(rec.Sources))
	keyPoints := enc.marshal(nonNil(rec.KeyPoints))
	citations := enc.marshal(nonNil(rec.Citations))
	criteria := enc.marshal(nonNilMap(rec.Criteria))
	trace := enc.marshal(nonNil(rec.Trace))
	errs := enc.marshal(nonNil(rec.Errors))
	if enc.err != nil {
		return fmt.Errorf("failed to encode query record: %w", enc.err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queries (id, session_id, query_text, answer, sources, key_points, citations, confidence,
			evaluation_score, rationale, criteria, execution_time, trace, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.QueryText, rec.Answer, sources, keyPoints, citations, rec.Confidence,
		rec.EvaluationScore, rec.Rationale, criteria, rec.ExecutionTime, trace, errs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}
	return nil
}

// GetByID gets a stored run by its ID.
func (r *QueryRepo) GetByID(ctx context.Context, id string) (*QueryRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+queryColumns+" FROM queries WHERE id = ?", id)
	rec, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return rec, nil
}

// List returns one page of history, newest first.
func (r *QueryRepo) List(ctx context.Context, params ListParams) ([]QueryRecord, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}

	where := ""
	var args []any
	if params.SessionID != "" {
		where = " WHERE session_id = ?"
		args = append(args, params.SessionID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queries"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count queries: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+queryColumns+" FROM queries"+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list queries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []QueryRecord
	for rows.Next() {
		rec, err := scanQuery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan query: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}
	return out, total, nil
}

// UpdateEvaluation replaces the evaluation of a stored run.
func (r *QueryRepo) UpdateEvaluation(ctx context.Context, id string, score float64, rationale string, criteria map[string]float64) error {
	raw, err := json.Marshal(nonNilMap(criteria))
	if err != nil {
		return fmt.Errorf("failed to encode criteria: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		"UPDATE queries SET evaluation_score = ?, rationale = ?, criteria = ? WHERE id = ?",
		score, rationale, string(raw), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
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

// Stats aggregates the whole history. Averages are zero when there is no history.
func (r *QueryRepo) Stats(ctx context.Context) (*QueryStats, error) {
	var stats QueryStats
	var avgScore, avgTime sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(evaluation_score), AVG(execution_time) FROM queries",
	).Scan(&stats.TotalQueries, &avgScore, &avgTime)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queries: %w", err)
	}
	stats.AverageScore = avgScore.Float64
	stats.AverageExecutionTime = avgTime.Float64
	return &stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(s scanner) (*QueryRecord, error) {
	var rec QueryRecord
	var sources, keyPoints, citations, criteria, trace, errs string
	err := s.Scan(&rec.ID, &rec.SessionID, &rec.QueryText, &rec.Answer, &sources, &keyPoints, &citations,
		&rec.Confidence, &rec.EvaluationScore, &rec.Rationale, &criteria, &rec.ExecutionTime, &trace, &errs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	dec := jsonColumns{}
	dec.unmarshal(sources, &rec.Sources)
	dec.unmarshal(keyPoints, &rec.KeyPoints)
	dec.unmarshal(citations, &rec.Citations)
	dec.unmarshal(criteria, &rec.Criteria)
	dec.unmarshal(trace, &rec.Trace)
	dec.unmarshal(errs, &rec.Errors)
	if dec.err != nil {
		return nil, fmt.Errorf("failed to decode query record %s: %w", rec.ID, dec.err)
	}
	return &rec, nil
}

// jsonColumns encodes or decodes several JSON columns, keeping the first error.
type jsonColumns struct {
	err error
}

func (j *jsonColumns) marshal(v any) string {
	if j.err != nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		j.err = err
		return ""
	}
	return string(raw)
}

func (j *jsonColumns) unmarshal(raw string, v any) {
	if j.err != nil || raw == "" {
		return
	}
	j.err = json.Unmarshal([]byte(raw), v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
