package indexer

import "fmt"

// WindowChunker splits text into fixed-size overlapping windows measured in runes.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker creates a chunker with window length size and the given overlap.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Split returns the windows of text in order. Window i+1 starts overlap runes
// before the end of window i. Text no longer than one window is returned whole.
func (c *WindowChunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{text}
	}

	var out []string
	for start := 0; ; {
		end := min(start+c.size, n)
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
		start = end - c.overlap
	}
	return out
}
