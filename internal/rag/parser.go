package rag

import (
	"context"
	"fmt"
	"strings"
)

const parserStage = "query_parser"

const parserSystemPrompt = "You are an expert query analyzer. Always respond with valid JSON."

const parserPromptTemplate = `Analyze the user query below and extract:
1. Intent: what the user is trying to accomplish
2. Entities: key terms, company names, metrics, dates
3. Query type: financial, technical, business, or general
4. Specificity: high, medium, or low
5. Expected answer type: comparison, explanation, data, analysis, or summary

Query: %q

Respond with a single JSON object:
{
  "intent": "brief description of user intent",
  "entities": ["entity1", "entity2"],
  "query_type": "financial|technical|business|general",
  "specificity": "high|medium|low",
  "expected_answer_type": "comparison|explanation|data|analysis|summary",
  "key_topics": ["topic1", "topic2"],
  "requires_calculations": false,
  "requires_comparisons": false,
  "time_sensitivity": "current|historical|future|none"
}`

// QueryParser reads the intent, entities and type of a question.
type QueryParser struct {
	llm  Completer
	opts Options
}

// NewQueryParser creates a query understanding stage.
func NewQueryParser(llm Completer, opts Options) *QueryParser {
	return &QueryParser{llm: llm, opts: opts}
}

// Name implements Stage.
func (p *QueryParser) Name() string { return parserStage }

// Run parses st.Query. On any failure it falls back to FallbackParse.
func (p *QueryParser) Run(ctx context.Context, st PipelineState) (PipelineState, error) {
	parsed, ok := callWithFallback(ctx, &st, p.opts, parserStage, "Query parsing",
		func(ctx context.Context) (ParsedQuery, error) {
			return p.Parse(ctx, st.Query)
		},
		func() ParsedQuery { return FallbackParse(st.Query) },
	)
	st.Parsed = parsed

	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	st.addTrace(parserStage,
		"query: "+truncate(st.Query, 100),
		fmt.Sprintf("intent=%q type=%s specificity=%s entities=%d",
			truncate(parsed.Intent, 80), parsed.QueryType, parsed.Specificity, len(parsed.Entities)),
		status,
	)
	return st, nil
}

// Parse asks the LLM for a structured reading of query.
func (p *QueryParser) Parse(ctx context.Context, query string) (ParsedQuery, error) {
	reply, err := p.llm.Complete(ctx, parserSystemPrompt, fmt.Sprintf(parserPromptTemplate, query), 0.1)
	if err != nil {
		return ParsedQuery{}, err
	}
	return decodeParsedQuery(reply)
}

type parsedQueryPayload struct {
	Intent               *string   `json:"intent"`
	Entities             *[]string `json:"entities"`
	QueryType            *string   `json:"query_type"`
	Specificity          string    `json:"specificity"`
	ExpectedAnswerType   string    `json:"expected_answer_type"`
	KeyTopics            []string  `json:"key_topics"`
	RequiresCalculations bool      `json:"requires_calculations"`
	RequiresComparisons  bool      `json:"requires_comparisons"`
	TimeSensitivity      string    `json:"time_sensitivity"`
}

// decodeParsedQuery validates an LLM reply. intent, entities and query_type
// are required; the rest default to neutral values.
func decodeParsedQuery(reply string) (ParsedQuery, error) {
	var raw parsedQueryPayload
	if err := decodeJSONPayload(reply, &raw); err != nil {
		return ParsedQuery{}, err
	}
	if raw.Intent == nil || raw.Entities == nil || raw.QueryType == nil {
		return ParsedQuery{}, fmt.Errorf("%w: intent, entities and query_type are required", ErrParsePayload)
	}

	queryType := strings.ToLower(strings.TrimSpace(*raw.QueryType))
	switch queryType {
	case QueryTypeFinancial, QueryTypeTechnical, QueryTypeBusiness, QueryTypeGeneral:
	default:
		return ParsedQuery{}, fmt.Errorf("%w: unknown query_type %q", ErrParsePayload, *raw.QueryType)
	}

	out := defaultParsedQuery()
	out.Intent = strings.TrimSpace(*raw.Intent)
	out.QueryType = queryType
	out.Entities = dedupeStrings(*raw.Entities)
	switch s := strings.ToLower(strings.TrimSpace(raw.Specificity)); s {
	case SpecificityHigh, SpecificityMedium, SpecificityLow:
		out.Specificity = s
	}
	if t := strings.ToLower(strings.TrimSpace(raw.ExpectedAnswerType)); t != "" {
		out.ExpectedAnswerType = t
	}
	out.KeyTopics = raw.KeyTopics
	out.RequiresCalculations = raw.RequiresCalculations
	out.RequiresComparisons = raw.RequiresComparisons
	out.TimeSensitivity = raw.TimeSensitivity
	return out, nil
}

// FallbackParse is the deterministic reading used when the LLM cannot be used.
func FallbackParse(query string) ParsedQuery {
	out := defaultParsedQuery()
	out.Entities = extractEntities(query)
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
