package rag

import (
	"context"
	"errors"
	"fmt"

	"insightbot/internal/metrics"
	"insightbot/internal/vectorstore"
)

const retrieverStage = "retriever"

// Retrieval defaults.
const (
	DefaultMinRelevance = 0.7
	DefaultMaxSources   = 10
)

// ErrQueryEmbedding is returned when the question could not be embedded.
var ErrQueryEmbedding = errors.New("query embedding failed")

// RetrieverOptions configures a Retriever.
type RetrieverOptions struct {
	Options
	MinRelevance float64 // search threshold; zero uses DefaultMinRelevance
	MaxSources   int     // cap on k and on the result; zero uses DefaultMaxSources
}

// Retriever finds, re-ranks and deduplicates sources for a question.
type Retriever struct {
	index    vectorstore.Index
	embedder Embedder
	opts     RetrieverOptions
}

// NewRetriever creates a retrieval stage.
func NewRetriever(index vectorstore.Index, embedder Embedder, opts RetrieverOptions) *Retriever {
	if opts.MinRelevance == 0 {
		opts.MinRelevance = DefaultMinRelevance
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = DefaultMaxSources
	}
	return &Retriever{index: index, embedder: embedder, opts: opts}
}

// Name implements Stage.
func (r *Retriever) Name() string { return retrieverStage }

// RetrievalCount picks how many neighbors to request for a parsed query.
func RetrievalCount(pq ParsedQuery, maxSources int) int {
	k := 5
	switch pq.Specificity {
	case SpecificityHigh:
		k = 3
	case SpecificityLow:
		k = 8
	}
	switch pq.ExpectedAnswerType {
	case "comparison":
		k += 3
	case "analysis":
		k += 2
	}
	return min(k, maxSources)
}

// Run retrieves sources for st.Query. Failures leave st.Sources empty and are
// recorded in st.Errors.
func (r *Retriever) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	logger := getLogger(ctx, r.opts.Logger)
	k := RetrievalCount(st.Parsed, r.opts.MaxSources)
	input := fmt.Sprintf("k=%d threshold=%.2f", k, r.opts.MinRelevance)

	sources, err := r.Retrieve(ctx, st.Query, st.Parsed)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "stage", retrieverStage, "error", err)
		metrics.FallbacksTotal.WithLabelValues(retrieverStage).Inc()
		st.Sources = []Source{}
		st.addError(fmt.Sprintf("Retrieval error: %v", err))
		st.addTrace(retrieverStage, input, err.Error(), StatusError)
		return st, nil
	}

	st.Sources = sources
	st.addTrace(retrieverStage, input,
		fmt.Sprintf("sources=%d avg_relevance=%.2f", len(sources), averageRelevance(sources)),
		StatusSuccess)
	logger.InfoContext(ctx, "retrieved sources", "count", len(sources), "k", k)
	return st, nil
}

// Retrieve embeds query, searches the index and applies entity boosting,
// ranking, deduplication and the source cap.
func (r *Retriever) Retrieve(ctx context.Context, query string, pq ParsedQuery) ([]Source, error) {
	k := RetrievalCount(pq, r.opts.MaxSources)
	sources, err := r.search(ctx, query, k, r.opts.MinRelevance)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return sources, nil
	}

	boostEntities(sources, pq.Entities)
	rankSources(sources)
	sources = dedupeSources(sources)
	if len(sources) > r.opts.MaxSources {
		sources = sources[:r.opts.MaxSources]
	}
	return sources, nil
}

// Search returns up to limit chunks scoring at least threshold against
// query, ordered by the index. No boosting or deduplication is applied.
func (r *Retriever) Search(ctx context.Context, query string, limit int, threshold float64) ([]Source, error) {
	return r.search(ctx, query, limit, threshold)
}

func (r *Retriever) search(ctx context.Context, query string, k int, threshold float64) ([]Source, error) {
	callCtx, cancel := withTimeout(ctx, r.opts.Timeout)
	defer cancel()

	vectors, err := r.embedder.EmbedTexts(callCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w: %w", ErrQueryEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrQueryEmbedding, len(vectors))
	}

	hits, err := r.index.Search(callCtx, vectors[0], k, float32(threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		idx := h.Chunk.ChunkIndex
		sources = append(sources, Source{
			ChunkID:        h.Chunk.ID,
			DocumentID:     h.Chunk.DocumentID,
			Content:        h.Chunk.Text,
			Filename:       h.Chunk.Filename,
			ChunkIndex:     &idx,
			RelevanceScore: float64(h.Score),
		})
	}
	return sources, nil
}

func averageRelevance(sources []Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.RelevanceScore
	}
	return sum / float64(len(sources))
}
