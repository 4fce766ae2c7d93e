package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// ChunkerVersion identifies the chunking implementation. Bump it when window
	// semantics change so IndexVersion changes with it.
	ChunkerVersion = "window-v1"
	// TokensPerRune approximates token counts (4 runes per token).
	TokensPerRune = 4.0
)

// IndexStats summarizes the ingested collection.
type IndexStats struct {
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion hashes chunker version, embedding model and window parameters.
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about estimated token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Stats reports document and chunk counts from the similarity index.
func (p *Pipeline) Stats(ctx context.Context) (*IndexStats, error) {
	docs, err := p.index.DocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	chunks, err := p.index.ChunkCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	return &IndexStats{
		Documents:      docs,
		Chunks:         chunks,
		ChunkerVersion: ChunkerVersion,
		IndexVersion:   p.indexVersion(),
	}, nil
}

func (p *Pipeline) indexVersion() string {
	input := fmt.Sprintf("%s|%s|size=%d|overlap=%d",
		ChunkerVersion, p.embeddingModel, p.chunker.size, p.chunker.overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// tokenStatsFor estimates token counts from rune counts.
func tokenStatsFor(texts []string) ChunkTokenStats {
	counts := make([]int, 0, len(texts))
	for _, t := range texts {
		n := int(math.Round(float64(utf8.RuneCountInString(t)) / TokensPerRune))
		counts = append(counts, max(n, 1))
	}
	return computeTokenStats(counts)
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
