package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/stockwise/internal/llm"
	"github.com/kalambet/stockwise/internal/metrics"
	"github.com/kalambet/stockwise/internal/storage"
	"github.com/kalambet/stockwise/internal/tools"
)

var tracer = otel.Tracer("stockwise/search")

// ErrLLMUnavailable is the fallback reason when no language model is configured.
var ErrLLMUnavailable = errors.New("language model not configured")

// Answer paths reported in Outcome.Path.
const (
	PathLLM      = "llm"
	PathFallback = "fallback"
)

// SearchResult is the answer to one natural-language query.
type SearchResult struct {
	Answer        string
	ProductsFound []storage.Product
	Query         string
}

// Outcome records how a SearchResult was produced.
type Outcome struct {
	Path   string
	Reason error // set when Path is PathFallback
}

// FallbackUsed reports whether the deterministic path produced the answer.
func (o Outcome) FallbackUsed() bool {
	return o.Path == PathFallback
}

// Config tunes the orchestrator. Zero values use defaults.
type Config struct {
	LLMTimeout  time.Duration
	ToolTimeout time.Duration
	ResultLimit int
	StopWords   []string
}

// Orchestrator answers inventory questions using a language model with tool
// calling, and falls back to a direct store lookup whenever the model path
// is unavailable or fails.
type Orchestrator struct {
	provider    llm.Provider
	store       tools.ProductSearcher
	tools       []tools.Tool
	llmTimeout  time.Duration
	toolTimeout time.Duration
	resultLimit int
	stopWords   []string
}

// New creates an Orchestrator. provider and predictor may be nil: without a
// provider every query takes the fallback path; without a predictor the
// image_recognition tool is not offered.
func New(provider llm.Provider, store tools.ProductSearcher, predictor tools.Predictor, cfg Config) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		store:       store,
		llmTimeout:  cfg.LLMTimeout,
		toolTimeout: cfg.ToolTimeout,
		resultLimit: cfg.ResultLimit,
		stopWords:   cfg.StopWords,
	}
	if o.llmTimeout <= 0 {
		o.llmTimeout = 30 * time.Second
	}
	if o.toolTimeout <= 0 {
		o.toolTimeout = 10 * time.Second
	}
	if o.resultLimit <= 0 {
		o.resultLimit = defaultResultLimit
	}
	if o.stopWords == nil {
		o.stopWords = DefaultStopWords
	}
	if store != nil {
		o.tools = append(o.tools, tools.NewProductSearch(store, o.resultLimit))
	}
	if predictor != nil {
		o.tools = append(o.tools, tools.NewImageRecognition(predictor))
	}
	return o
}

// Tools returns the tools offered to the model, in binding order.
func (o *Orchestrator) Tools() []tools.Tool {
	return o.tools
}

// SemanticSearch answers query. It never fails: any problem on the model
// path degrades to the fallback answer.
func (o *Orchestrator) SemanticSearch(ctx context.Context, query string) SearchResult {
	res, _ := o.Search(ctx, query)
	return res
}

// Search answers query and reports which path produced the answer.
func (o *Orchestrator) Search(ctx context.Context, query string) (SearchResult, Outcome) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	start := time.Now()

	var (
		res SearchResult
		out Outcome
	)
	if o.provider == nil || o.tool(tools.ProductSearchName) == nil {
		out = Outcome{Path: PathFallback, Reason: ErrLLMUnavailable}
		slog.Warn("language model not configured, using fallback search")
		res = o.fallback(ctx, query)
	} else if r, err := o.llmSearch(ctx, query); err != nil {
		out = Outcome{Path: PathFallback, Reason: err}
		slog.Warn("llm search failed, using fallback search", "error", err)
		span.RecordError(err)
		res = o.fallback(ctx, query)
	} else {
		out = Outcome{Path: PathLLM}
		res = r
	}

	span.SetAttributes(
		attribute.String("path", out.Path),
		attribute.Int("products", len(res.ProductsFound)),
	)
	metrics.RecordSearch(out.Path, time.Since(start).Seconds())
	return res, out
}

func (o *Orchestrator) llmSearch(ctx context.Context, query string) (SearchResult, error) {
	defs := make([]llm.ToolDefinition, len(o.tools))
	for i, t := range o.tools {
		defs[i] = llm.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: query},
	}

	first, err := o.chat(ctx, llm.ChatRequest{Messages: msgs, Tools: defs})
	if err != nil {
		return SearchResult{}, fmt.Errorf("first completion: %w", err)
	}

	res := SearchResult{Query: query, ProductsFound: []storage.Product{}}
	if len(first.ToolCalls) == 0 {
		res.Answer = first.Content
		return res, nil
	}

	results, err := o.dispatch(ctx, first.ToolCalls)
	if err != nil {
		return SearchResult{}, fmt.Errorf("tool dispatch: %w", err)
	}

	first.Role = llm.RoleAssistant
	msgs = append(msgs, first)
	for i, tc := range first.ToolCalls {
		msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: results[i].Text, ToolCallID: tc.ID})
		if tc.Name == tools.ProductSearchName {
			res.ProductsFound = results[i].Products
		}
	}

	final, err := o.chat(ctx, llm.ChatRequest{Messages: msgs, Tools: defs})
	if err != nil {
		return SearchResult{}, fmt.Errorf("final completion: %w", err)
	}
	if res.ProductsFound == nil {
		res.ProductsFound = []storage.Product{}
	}
	res.Answer = final.Content
	return res, nil
}

func (o *Orchestrator) chat(ctx context.Context, req llm.ChatRequest) (llm.Message, error) {
	cctx, cancel := o.withTimeout(ctx, o.llmTimeout)
	defer cancel()
	return o.provider.Chat(cctx, req)
}

// dispatch runs every requested tool call concurrently and returns results
// in request order. Unknown tools answer with an error text.
func (o *Orchestrator) dispatch(ctx context.Context, calls []llm.ToolCall) ([]tools.Result, error) {
	results := make([]tools.Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range calls {
		g.Go(func() error {
			t := o.tool(tc.Name)
			if t == nil {
				metrics.RecordToolCall(tc.Name, "unknown")
				results[i] = tools.Result{Text: "Error: Unknown tool"}
				return nil
			}

			tctx, cancel := o.withTimeout(gctx, o.toolTimeout)
			defer cancel()
			r, err := t.Invoke(tctx, json.RawMessage(tc.Arguments))
			if err != nil {
				metrics.RecordToolCall(tc.Name, "error")
				return fmt.Errorf("%s: %w", tc.Name, err)
			}
			metrics.RecordToolCall(tc.Name, "ok")
			slog.Debug("tool call complete", "tool", tc.Name, "call_id", tc.ID, "products", len(r.Products))
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) tool(name string) tools.Tool {
	for _, t := range o.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (o *Orchestrator) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
