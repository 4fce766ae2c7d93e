package rag

import (
	"sort"
	"strings"
)

const (
	entityBoost         = 0.1
	duplicateSimilarity = 0.8
)

// boostEntities adds entityBoost to a source's score for every entity that
// occurs in its content, case-insensitively. Scores are not clamped.
func boostEntities(sources []Source, entities []string) {
	if len(entities) == 0 {
		return
	}
	lowered := make([]string, 0, len(entities))
	for _, e := range entities {
		if e != "" {
			lowered = append(lowered, strings.ToLower(e))
		}
	}
	for i := range sources {
		content := strings.ToLower(sources[i].Content)
		for _, e := range lowered {
			if strings.Contains(content, e) {
				sources[i].RelevanceScore += entityBoost
			}
		}
	}
}

// rankSources sorts by descending relevance, keeping index order among ties.
func rankSources(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})
}

// dedupeSources walks sources in order and drops any whose word set is more
// than 80% similar to an already kept source.
func dedupeSources(sources []Source) []Source {
	kept := make([]Source, 0, len(sources))
	keptWords := make([]map[string]struct{}, 0, len(sources))

	for _, src := range sources {
		words := wordSet(src.Content)
		duplicate := false
		for _, other := range keptWords {
			if jaccard(words, other) > duplicateSimilarity {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, src)
			keptWords = append(keptWords, words)
		}
	}
	return kept
}

// wordSet lowercases text and splits it on whitespace.
func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for w := range small {
		if _, ok := large[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
