package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to the OpenAI API (or any compatible endpoint) through
// the go-openai SDK. It serves both completions and embeddings.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	dimensions     int
}

// OpenAIConfig holds the OpenAI provider settings.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Dimensions     int
}

// NewOpenAIClient creates an OpenAI-backed client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:     cfg.Dimensions,
	}
}

// Complete sends a system and user prompt pair and returns the model's reply.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", parseAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrServiceCall)
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbedTexts embeds all texts in a single request, preserving input order.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError("embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrServiceCall, len(texts), len(resp.Data))
	}

	slots := newVectorSlots(len(texts), c.dimensions)
	for _, d := range resp.Data {
		if err := slots.put(d.Index, d.Embedding); err != nil {
			return nil, err
		}
	}
	return slots.vectors, nil
}

// parseAPIError extracts a readable error from the SDK error and wraps ErrServiceCall.
func parseAPIError(op string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, string(reqErr.Body), ErrServiceCall)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, ErrServiceCall)
	}

	return fmt.Errorf("%s request failed: %w: %w", op, ErrServiceCall, err)
}
