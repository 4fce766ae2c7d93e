package rag

import (
	"math"
	"testing"
)

func TestBoostEntities(t *testing.T) {
	sources := []Source{
		{Content: "Tesla delivered more cars in 2024", RelevanceScore: 0.95},
		{Content: "Nothing relevant here", RelevanceScore: 0.8},
	}

	boostEntities(sources, []string{"tesla", "2024", ""})

	if math.Abs(sources[0].RelevanceScore-1.15) > 1e-9 {
		t.Errorf("boosted score = %v, want 1.15 (unclamped)", sources[0].RelevanceScore)
	}
	if sources[1].RelevanceScore != 0.8 {
		t.Errorf("unmatched score = %v, want 0.8", sources[1].RelevanceScore)
	}
}

func TestRankSources_Stable(t *testing.T) {
	sources := []Source{
		{ChunkID: "a", RelevanceScore: 0.7},
		{ChunkID: "b", RelevanceScore: 0.9},
		{ChunkID: "c", RelevanceScore: 0.7},
	}
	rankSources(sources)

	want := []string{"b", "a", "c"}
	for i, id := range want {
		if sources[i].ChunkID != id {
			t.Errorf("rankSources()[%d] = %s, want %s", i, sources[i].ChunkID, id)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "the cat sat", b: "The Cat sat", want: 1},
		{name: "disjoint", a: "alpha beta", b: "gamma delta", want: 0},
		{name: "half", a: "a b c", b: "b c d", want: 0.5},
		{name: "both empty", a: "", b: "  ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(wordSet(tt.a), wordSet(tt.b)); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDedupeSources(t *testing.T) {
	sources := []Source{
		{ChunkID: "keep", Content: "one two three four five six seven eight nine ten", RelevanceScore: 0.9},
		// 9 shared words of 11 total: 0.818 > 0.8
		{ChunkID: "drop", Content: "one two three four five six seven eight nine eleven", RelevanceScore: 0.85},
		// 8 shared words of 12 total: 0.667
		{ChunkID: "near", Content: "one two three four five six seven eight twelve thirteen", RelevanceScore: 0.8},
	}

	got := dedupeSources(sources)

	if len(got) != 2 || got[0].ChunkID != "keep" || got[1].ChunkID != "near" {
		t.Errorf("dedupeSources() = %+v", got)
	}
}
