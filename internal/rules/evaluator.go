// internal/rules/evaluator.go
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/sentinelops/internal/metrics"
	"github.com/user/sentinelops/internal/types"
)

// paymentFailureTypes are the event types counted as failed payments.
var paymentFailureTypes = []string{"payment_intent.payment_failed", "charge.failed"}

// sampleEventLimit bounds the invalid event ids kept as evidence.
const sampleEventLimit = 5

// Outcome describes one rule evaluation.
type Outcome struct {
	RuleCode    string
	WindowStart time.Time
	WindowEnd   time.Time
	Triggered   bool
	Created     bool
	AnomalyID   types.AnomalyID
}

// check reports whether a rule fires in [start, end) and with what evidence.
type check func(ctx context.Context, start, end time.Time) (bool, map[string]any, error)

type rule struct {
	code   string
	bucket time.Duration
	check  check
}

// Evaluator runs the evaluable rules against the event store and records
// anomalies.
type Evaluator struct {
	events        types.EventStore
	anomalies     types.AnomalyStore
	notifier      types.Notifier
	notifyTimeout time.Duration
	logger        *slog.Logger
	rules         []rule
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithNotifier sets the channel that receives new-anomaly notices.
func WithNotifier(n types.Notifier) Option {
	return func(e *Evaluator) { e.notifier = n }
}

// WithNotifyTimeout bounds each anomaly notice.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.notifyTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an Evaluator. Rules run in the order
// webhook_integrity, payment_failure_spike, rapid_retry_failure.
func NewEvaluator(events types.EventStore, anomalies types.AnomalyStore, opts ...Option) *Evaluator {
	e := &Evaluator{
		events:        events,
		anomalies:     anomalies,
		notifyTimeout: 3 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = []rule{
		{code: WebhookIntegrity, bucket: 30 * time.Minute, check: e.checkWebhookIntegrity},
		{code: PaymentFailureSpike, bucket: 30 * time.Minute, check: e.failureCount(3, 30)},
		{code: RapidRetryFailure, bucket: 5 * time.Minute, check: e.failureCount(2, 5)},
	}
	return e
}

// Codes returns the evaluated rule codes in execution order.
func (e *Evaluator) Codes() []string {
	out := make([]string, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.code
	}
	return out
}

// EvaluateAll runs every rule once at now. A failing rule is logged and does
// not stop the rules after it; all failures are joined into the result.
func (e *Evaluator) EvaluateAll(ctx context.Context, now time.Time) error {
	runID := types.NewRunID()
	logger := e.logger.With("run_id", runID)
	logger.Info("evaluating rules", "now", now.UTC().Format(time.RFC3339))

	var errs []error
	for _, r := range e.rules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out, err := e.evaluate(ctx, logger, r, now)
		if err != nil {
			logger.Error("rule failed", "rule_code", r.code, "error", err)
			metrics.RuleEvaluations.WithLabelValues(r.code, "error").Inc()
			errs = append(errs, fmt.Errorf("rule %s: %w", r.code, err))
			continue
		}
		metrics.RuleEvaluations.WithLabelValues(r.code, resultLabel(out)).Inc()
	}
	return errors.Join(errs...)
}

// Evaluate runs a single rule at now.
func (e *Evaluator) Evaluate(ctx context.Context, code string, now time.Time) (Outcome, error) {
	for _, r := range e.rules {
		if r.code == code {
			return e.evaluate(ctx, e.logger, r, now)
		}
	}
	return Outcome{}, fmt.Errorf("rule %q has no evaluator", code)
}

func (e *Evaluator) evaluate(ctx context.Context, logger *slog.Logger, r rule, now time.Time) (Outcome, error) {
	now = now.UTC()
	start, end := Window(now, r.bucket)
	out := Outcome{RuleCode: r.code, WindowStart: start, WindowEnd: end}

	triggered, evidence, err := r.check(ctx, start, end)
	if err != nil {
		return out, err
	}
	if !triggered {
		logger.Debug("rule not triggered", "rule_code", r.code, "window_start", start)
		return out, nil
	}
	out.Triggered = true

	def, ok := Lookup(r.code)
	if !ok {
		return out, fmt.Errorf("rule %q missing from catalog", r.code)
	}
	anomaly := &types.Anomaly{
		RuleCode:    def.Code,
		Severity:    def.Severity,
		Title:       def.Title,
		Status:      types.StatusOpen,
		WindowStart: &start,
		WindowEnd:   &end,
		DetectedAt:  now,
		Evidence:    evidence,
	}
	created, existing, err := e.anomalies.CreateIfNoneOpen(ctx, anomaly)
	if err != nil {
		return out, fmt.Errorf("record anomaly: %w", err)
	}
	if !created {
		out.AnomalyID = existing.ID
		logger.Info("anomaly already open", "rule_code", r.code, "anomaly_id", existing.ID)
		return out, nil
	}

	out.Created = true
	out.AnomalyID = anomaly.ID
	metrics.AnomaliesCreated.WithLabelValues(r.code).Inc()
	logger.Info("anomaly created", "rule_code", r.code, "anomaly_id", anomaly.ID, "severity", anomaly.Severity)
	e.notify(ctx, logger, anomaly)
	return out, nil
}

// notify is best effort; the anomaly stays recorded whatever happens here.
func (e *Evaluator) notify(ctx context.Context, logger *slog.Logger, a *types.Anomaly) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()
	if _, err := e.notifier.Notify(ctx, NotificationText(a)); err != nil {
		metrics.NotificationsFailed.WithLabelValues("anomaly").Inc()
		logger.Warn("anomaly notification failed", "rule_code", a.RuleCode, "anomaly_id", a.ID, "error", err)
	}
}

func (e *Evaluator) checkWebhookIntegrity(ctx context.Context, start, end time.Time) (bool, map[string]any, error) {
	filter := types.EventFilter{Status: types.EventInvalid, From: start, To: end}
	count, err := e.events.Count(ctx, filter)
	if err != nil {
		return false, nil, fmt.Errorf("count invalid events: %w", err)
	}
	if count == 0 {
		return false, nil, nil
	}
	recent, err := e.events.Recent(ctx, filter, sampleEventLimit)
	if err != nil {
		return false, nil, fmt.Errorf("sample invalid events: %w", err)
	}
	ids := make([]int64, len(recent))
	for i, ev := range recent {
		ids[i] = int64(ev.ID)
	}
	return true, map[string]any{
		"invalid_event_count": count,
		"sample_event_ids":    ids,
	}, nil
}

// failureCount fires when at least threshold verified payment failures land
// in the window.
func (e *Evaluator) failureCount(threshold, windowMinutes int) check {
	return func(ctx context.Context, start, end time.Time) (bool, map[string]any, error) {
		count, err := e.events.Count(ctx, types.EventFilter{
			Status: types.EventVerified,
			Types:  paymentFailureTypes,
			From:   start,
			To:     end,
		})
		if err != nil {
			return false, nil, fmt.Errorf("count failed payments: %w", err)
		}
		if count < threshold {
			return false, nil, nil
		}
		return true, map[string]any{
			"failed_count":   count,
			"threshold":      threshold,
			"window_minutes": windowMinutes,
		}, nil
	}
}

func resultLabel(o Outcome) string {
	switch {
	case o.Created:
		return "created"
	case o.Triggered:
		return "existing"
	default:
		return "quiet"
	}
}
