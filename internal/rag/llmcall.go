package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks insightbot/internal/rag Completer,Embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"insightbot/internal/contextutil"
	"insightbot/internal/metrics"
)

var (
	// ErrParsePayload is returned when structured LLM output fails validation.
	ErrParsePayload = errors.New("invalid structured payload")
	// ErrInvalidEvaluationPayload is returned when an evaluation payload lacks required keys.
	ErrInvalidEvaluationPayload = fmt.Errorf("%w: evaluation", ErrParsePayload)
)

// Completer is the LLM generation boundary.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

// Embedder is the embedding service boundary.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Options are shared by the LLM-backed stages.
type Options struct {
	// Timeout bounds each external call. Zero leaves only the request context.
	Timeout time.Duration
	Logger  *slog.Logger
}

func getLogger(ctx context.Context, l *slog.Logger) *slog.Logger {
	if cl := contextutil.LoggerFromContext(ctx); cl != slog.Default() {
		return cl
	}
	if l != nil {
		return l
	}
	return slog.Default()
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// callWithFallback runs call bounded by the stage timeout. On failure it records
// "<label> error: <err>" in the state, logs, counts the fallback and returns
// fallback(). The second result reports whether call succeeded.
func callWithFallback[T any](
	ctx context.Context,
	st *PipelineState,
	opts Options,
	stage, label string,
	call func(context.Context) (T, error),
	fallback func() T,
) (T, bool) {
	callCtx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	v, err := call(callCtx)
	if err == nil {
		return v, true
	}

	getLogger(ctx, opts.Logger).WarnContext(ctx, "stage falling back", "stage", stage, "error", err)
	metrics.FallbacksTotal.WithLabelValues(stage).Inc()
	st.addError(fmt.Sprintf("%s error: %v", label, err))
	return fallback(), false
}

// decodeJSONPayload unmarshals an LLM reply that should be a JSON object,
// tolerating markdown code fences and surrounding prose.
func decodeJSONPayload(reply string, v any) error {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParsePayload, err)
	}
	return nil
}

// truncate shortens s to n runes for trace summaries.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
