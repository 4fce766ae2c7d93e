package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"insightbot/internal/metrics"
)

const tracerName = "insightbot/internal/rag"

// Stage is one step of the workflow. Run receives a private copy of the state
// and returns the updated state. Stages contain their own failures; a returned
// error or a panic is treated as a defect and contained by the Engine.
type Stage interface {
	Name() string
	Run(ctx context.Context, st PipelineState) (PipelineState, error)
}

type node struct {
	stage Stage
	label string
}

// Engine runs the five stages in a fixed order over one PipelineState.
type Engine struct {
	nodes  []node
	logger *slog.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(parser, retriever, analyzer, summarizer, evaluator Stage, logger *slog.Logger) *Engine {
	return &Engine{
		nodes: []node{
			{stage: parser, label: "Parse query"},
			{stage: retriever, label: "Retrieve sources"},
			{stage: analyzer, label: "Analyze sources"},
			{stage: summarizer, label: "Create summary"},
			{stage: evaluator, label: "Evaluate response"},
		},
		logger: logger,
	}
}

// Run answers query. It never fails: the returned state always carries a
// non-empty FinalAnswer, degraded if stages had to fall back.
func (e *Engine) Run(ctx context.Context, query, sessionID string) PipelineState {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	logger := getLogger(ctx, e.logger).With("session_id", sessionID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "workflow.run")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	start := time.Now()
	logger.InfoContext(ctx, "workflow started", "query", truncate(query, 100))

	st := NewState(query, sessionID)
	for _, n := range e.nodes {
		st = e.runNode(ctx, logger, n, st)
	}

	if st.FinalAnswer == "" {
		reason := "no answer was produced"
		if len(st.Errors) > 0 {
			reason = st.Errors[len(st.Errors)-1]
		}
		st.FinalAnswer = "I apologize, but I encountered an error processing your query: " + reason
	}
	st.ExecutionTime = time.Since(start)

	if len(st.Errors) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stage errors", len(st.Errors)))
	}
	logger.InfoContext(ctx, "workflow completed",
		"duration", st.ExecutionTime,
		"sources", len(st.Sources),
		"score", st.Evaluation.Score,
		"errors", len(st.Errors),
	)
	return st
}

// runNode runs one stage on a copy of in. If the stage errors or panics, in
// is passed on unchanged apart from the node error and a trace entry.
func (e *Engine) runNode(ctx context.Context, logger *slog.Logger, n node, in PipelineState) PipelineState {
	name := n.stage.Name()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	out, err := invoke(ctx, n.stage, in.Clone())
	elapsed := time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "stage failed", "stage", name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		out = in
		out.addError(fmt.Sprintf("%s node error: %v", n.label, err))
		out.addTrace(name, "", err.Error(), StatusError)
	}

	status := StatusSuccess
	if len(out.Trace) > len(in.Trace) {
		last := &out.Trace[len(out.Trace)-1]
		last.Duration = elapsed
		status = last.Status
	}

	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	metrics.StageRunsTotal.WithLabelValues(name, status).Inc()
	logger.DebugContext(ctx, "stage completed", "stage", name, "status", status, "duration", elapsed)
	return out
}

func invoke(ctx context.Context, s Stage, st PipelineState) (out PipelineState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run(ctx, st)
}

// WorkflowStatus describes the configured workflow.
type WorkflowStatus struct {
	Initialized bool              `json:"workflow_initialized"`
	Agents      map[string]string `json:"agents"`
	Steps       []string          `json:"workflow_steps"`
}

// Status reports which stages are wired, in execution order.
func (e *Engine) Status() WorkflowStatus {
	ws := WorkflowStatus{
		Initialized: true,
		Agents:      make(map[string]string, len(e.nodes)),
		Steps:       make([]string, 0, len(e.nodes)),
	}
	for _, n := range e.nodes {
		name := n.stage.Name()
		ws.Agents[name] = "active"
		ws.Steps = append(ws.Steps, name)
	}
	return ws
}
