package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EmbeddingsClient calls an OpenAI-compatible /v1/embeddings endpoint, such
// as the one served by llama.cpp.
type EmbeddingsClient struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	client    *http.Client
}

// NewEmbeddingsClient creates an embeddings client. A positive dimension
// makes EmbedTexts reject vectors of any other length.
func NewEmbeddingsClient(baseURL, apiKey, model string, dimension int) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		Dimension: dimension,
		client:    newHTTPClient(),
	}
}

// EmbeddingsRequest is the /v1/embeddings request body.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData is one vector of the response. Index refers to the position
// of the input text, which need not match the position in Data.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse is the /v1/embeddings response body.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// EmbedTexts embeds all texts in one request and returns the vectors in
// input order.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	body, err := json.Marshal(EmbeddingsRequest{Model: c.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w: %w", ErrServiceCall, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: bad status %d: %s", ErrServiceCall, resp.StatusCode, string(raw))
	}

	var decoded EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w: %w", ErrServiceCall, err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrServiceCall, len(texts), len(decoded.Data))
	}

	slots := newVectorSlots(len(texts), c.Dimension)
	for _, d := range decoded.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		if err := slots.put(d.Index, vec); err != nil {
			return nil, err
		}
	}
	return slots.vectors, nil
}

// vectorSlots collects embedding vectors by the input index the server
// reports for them.
type vectorSlots struct {
	vectors   [][]float32
	filled    []bool
	dimension int
}

func newVectorSlots(n, dimension int) *vectorSlots {
	return &vectorSlots{
		vectors:   make([][]float32, n),
		filled:    make([]bool, n),
		dimension: dimension,
	}
}

// put stores vec at idx. Every idx must be in range and seen once.
func (s *vectorSlots) put(idx int, vec []float32) error {
	if idx < 0 || idx >= len(s.vectors) {
		return fmt.Errorf("%w: embedding index %d out of range for %d inputs", ErrServiceCall, idx, len(s.vectors))
	}
	if s.filled[idx] {
		return fmt.Errorf("%w: duplicate embedding index %d", ErrServiceCall, idx)
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return fmt.Errorf("%w: embedding %d has size %d, expected %d", ErrServiceCall, idx, len(vec), s.dimension)
	}
	s.vectors[idx] = vec
	s.filled[idx] = true
	return nil
}
