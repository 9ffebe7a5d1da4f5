// Package insight produces the optional natural-language paragraph of the
// daily summary. Generation is best effort: every failure is reported as a
// short error code on the Result, never as an error or panic.
package insight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/sentinelops/internal/metrics"
	"github.com/user/sentinelops/internal/retry"
	"github.com/user/sentinelops/pkg/llm"
)

// Error codes stored on the delivery ledger.
const (
	CodeNotConfigured  = "ai_not_configured"
	CodeEmpty          = "ai_empty"
	CodeRateLimited    = "ai_rate_limited"
	CodePromptTooLarge = "ai_prompt_too_large"
	CodePanic          = "ai_failed:panic"
)

// Result is the outcome of one generation.
type Result struct {
	SummaryText string
	Model       string
	ErrorCode   string
	ErrorDetail string
}

// OK reports whether a summary was produced.
func (r Result) OK() bool {
	return r.ErrorCode == "" && r.SummaryText != ""
}

// Generator calls the provider with the rendered prompt.
type Generator struct {
	provider        llm.Provider
	model           string
	policy          *retry.Policy
	counter         TokenCounter
	maxPromptTokens int
	logger          *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetryPolicy replaces the default 3-attempt backoff.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithTokenBudget rejects prompts longer than max tokens as measured by c.
func WithTokenBudget(c TokenCounter, max int) Option {
	return func(g *Generator) {
		g.counter = c
		g.maxPromptTokens = max
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator. A nil provider or empty model yields
// ai_not_configured on every call.
func NewGenerator(provider llm.Provider, model string, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		model:    model,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	policy := *g.policy
	if policy.Retryable == nil {
		policy.Retryable = llm.IsTransient
	}
	g.policy = &policy
	return g
}

// Generate summarizes snap.
func (g *Generator) Generate(ctx context.Context, snap *Snapshot) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{Model: g.model, ErrorCode: CodePanic, ErrorDetail: fmt.Sprint(p)}
		}
		label := res.ErrorCode
		if label == "" {
			label = "ok"
		}
		metrics.InsightRequests.WithLabelValues(label).Inc()
	}()

	if g.provider == nil || g.model == "" {
		return Result{ErrorCode: CodeNotConfigured}
	}

	msgs, err := BuildMessages(snap)
	if err != nil {
		return Result{Model: g.model, ErrorCode: failedCode(llm.KindUnknown), ErrorDetail: err.Error()}
	}
	if g.counter != nil && g.maxPromptTokens > 0 {
		if n := countMessages(g.counter, msgs); n > g.maxPromptTokens {
			return Result{
				Model:       g.model,
				ErrorCode:   CodePromptTooLarge,
				ErrorDetail: fmt.Sprintf("prompt has %d tokens, budget %d", n, g.maxPromptTokens),
			}
		}
	}

	var resp *llm.Response
	attempt := 0
	err = g.policy.Execute(ctx, func(ctx context.Context) error {
		attempt++
		r, err := g.provider.Complete(ctx, msgs)
		if err != nil {
			g.logger.Debug("insight attempt failed", "attempt", attempt, "kind", llm.Classify(err), "error", err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return Result{Model: g.model, ErrorCode: codeFor(err), ErrorDetail: err.Error()}
	}

	model := g.model
	if resp.Model != "" {
		model = resp.Model
	}
	text := Sanitize(resp.Content)
	if text == "" {
		return Result{Model: model, ErrorCode: CodeEmpty}
	}
	return Result{SummaryText: text, Model: model}
}

func codeFor(err error) string {
	kind := llm.Classify(err)
	if kind == llm.KindRateLimited {
		return CodeRateLimited
	}
	return failedCode(kind)
}

func failedCode(kind llm.ErrorKind) string {
	return "ai_failed:" + string(kind)
}
