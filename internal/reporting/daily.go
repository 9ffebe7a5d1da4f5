// internal/reporting/daily.go
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/insight"
	"github.com/user/sentinelops/internal/metrics"
	"github.com/user/sentinelops/internal/retry"
	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/types"
)

// ErrNoNotifier is returned when a summary is due but no channel is set.
var ErrNoNotifier = errors.New("no notifier configured")

// maxDetailLen bounds the AI error detail written to the log.
const maxDetailLen = 220

// Insighter produces the optional AI paragraph.
type Insighter interface {
	Generate(ctx context.Context, snap *insight.Snapshot) insight.Result
}

// Config tunes a DailySummary.
type Config struct {
	Kind                  string
	ForceResend           bool
	ShowAIUnavailableNote bool
	StaleAfter            time.Duration
	NotifyTimeout         time.Duration
}

// Result reports the outcome of one run.
type Result struct {
	Delivered      bool   `json:"delivered"`
	Skipped        bool   `json:"skipped"`
	SkipReason     string `json:"skip_reason,omitempty"`
	UsedAI         bool   `json:"used_ai"`
	AIError        string `json:"ai_error,omitempty"`
	MessagePreview string `json:"message_preview"`
}

// DailySummary aggregates the trailing 24 hours and delivers them at most
// once per (kind, date).
type DailySummary struct {
	collector *Collector
	insighter Insighter
	notifier  types.Notifier
	ledger    *Ledger
	cfg       Config
	logger    *slog.Logger

	// finalize retries the ledger write after a delivered notice. A row
	// left sending would be reclaimed once stale and sent twice.
	finalize *retry.Policy
}

// NewDailySummary wires a DailySummary. insighter may be nil to skip AI.
func NewDailySummary(collector *Collector, insighter Insighter, notifier types.Notifier, deliveries types.DeliveryStore, cfg Config, logger *slog.Logger) *DailySummary {
	if cfg.Kind == "" {
		cfg.Kind = "daily_ops"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailySummary{
		collector: collector,
		insighter: insighter,
		notifier:  notifier,
		ledger:    NewLedger(deliveries, cfg.StaleAfter),
		cfg:       cfg,
		logger:    logger,
		finalize: &retry.Policy{
			MaxAttempts:  4,
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Retryable:    func(err error) bool { return !errors.Is(err, state.ErrNotFound) },
		},
	}
}

// SetForceResend toggles resending a summary that was already sent.
func (s *DailySummary) SetForceResend(force bool) {
	s.cfg.ForceResend = force
}

// Run builds and sends the summary for the 24 hours ending at now.
func (s *DailySummary) Run(ctx context.Context, now time.Time) (*Result, error) {
	now = now.UTC()
	logger := s.logger.With("run_id", types.NewRunID(), "kind", s.cfg.Kind)
	attempt := Attempt{
		Kind:        s.cfg.Kind,
		SummaryDate: now.Format("2006-01-02"),
		WindowStart: now.Add(-24 * time.Hour),
		WindowEnd:   now,
		Force:       s.cfg.ForceResend,
		Now:         now,
	}
	logger = logger.With("summary_date", attempt.SummaryDate)

	d, skip, err := s.ledger.Begin(ctx, attempt)
	if err != nil {
		metrics.DailySummaryRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("begin delivery: %w", err)
	}
	if skip != "" {
		metrics.DailySummaryRuns.WithLabelValues("skipped").Inc()
		logger.Info("daily summary skipped", "reason", skip)
		return &Result{Skipped: true, SkipReason: skip}, nil
	}

	var st sendState
	res, err := s.send(ctx, logger, attempt, &st)
	if err != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ferr := s.ledger.MarkFailed(fctx, d, now, st.usedAI, st.aiError); ferr != nil {
			logger.Error("failed to record failed delivery", "error", ferr)
		}
		metrics.DailySummaryRuns.WithLabelValues("failed").Inc()
		logger.Error("daily summary failed", "error", err)
		return nil, err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err = s.finalize.Execute(fctx, func(ctx context.Context) error {
		return s.ledger.MarkSent(ctx, d, now, res.UsedAI, res.AIError, st.response)
	})
	if err != nil {
		metrics.DailySummaryRuns.WithLabelValues("failed").Inc()
		logger.Error("summary delivered but ledger not finalized", "delivery_id", d.ID, "error", err)
		return res, fmt.Errorf("finalize delivery: %w", err)
	}
	metrics.DailySummaryRuns.WithLabelValues("sent").Inc()
	logger.Info("daily summary sent", "used_ai", res.UsedAI, "ai_error", res.AIError)
	return res, nil
}

// sendState carries what is known about an attempt when it fails midway.
type sendState struct {
	usedAI   bool
	aiError  string
	response string
}

func (s *DailySummary) send(ctx context.Context, logger *slog.Logger, a Attempt, st *sendState) (*Result, error) {
	in, err := s.collector.Collect(ctx, a.WindowStart, a.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	report := Compose(in)

	var aiText string
	if s.insighter != nil {
		r := s.insighter.Generate(ctx, report.Snapshot)
		if r.OK() {
			aiText = r.SummaryText
			st.usedAI = true
		} else {
			st.aiError = r.ErrorCode
			if r.ErrorDetail != "" {
				logger.Warn("AI insight unavailable", "code", r.ErrorCode,
					"detail", insight.OneLine(r.ErrorDetail, maxDetailLen))
			} else {
				logger.Info("AI insight unavailable", "code", r.ErrorCode)
			}
		}
	} else {
		st.aiError = insight.CodeNotConfigured
	}

	msg := Message{
		SummaryDate:       a.SummaryDate,
		Report:            report,
		AIText:            aiText,
		AIErrorCode:       st.aiError,
		ShowAIUnavailable: s.cfg.ShowAIUnavailableNote,
	}.Render()

	if s.notifier == nil {
		return nil, ErrNoNotifier
	}
	nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	resp, err := s.notifier.Notify(nctx, msg)
	if err != nil {
		metrics.NotificationsFailed.WithLabelValues("daily_summary").Inc()
		return nil, fmt.Errorf("notify: %w", err)
	}
	st.response = resp

	return &Result{
		Delivered:      true,
		UsedAI:         st.usedAI,
		AIError:        st.aiError,
		MessagePreview: strings.TrimSpace(msg),
	}, nil
}
