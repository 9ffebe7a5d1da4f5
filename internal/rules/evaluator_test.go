package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/types"
)

type mockNotifier struct {
	mu       sync.Mutex
	messages []string
	NotifyFn func(ctx context.Context, text string) (string, error)
}

func (m *mockNotifier) Notify(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.messages = append(m.messages, text)
	m.mu.Unlock()
	if m.NotifyFn != nil {
		return m.NotifyFn(ctx, text)
	}
	return "ok", nil
}

type fixture struct {
	events    *state.EventStore
	anomalies *state.AnomalyStore
	notifier  *mockNotifier
	eval      *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "rules.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		events:    state.NewEventStore(db),
		anomalies: state.NewAnomalyStore(db),
		notifier:  &mockNotifier{},
	}
	f.eval = NewEvaluator(f.events, f.anomalies, WithNotifier(f.notifier))
	return f
}

func (f *fixture) addFailure(t *testing.T, id string, at time.Time) {
	t.Helper()
	_, err := f.events.InsertVerified(context.Background(), &types.Event{
		ProviderEventID: types.StringPtr(id),
		EventType:       types.StringPtr("charge.failed"),
		Raw:             json.RawMessage(`{}`),
		CreatedAt:       at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addInvalid(t *testing.T, at time.Time) {
	t.Helper()
	if err := f.events.InsertInvalid(context.Background(), &types.Event{CreatedAt: at}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) open(t *testing.T, code string) []*types.Anomaly {
	t.Helper()
	list, err := f.anomalies.List(context.Background(), types.AnomalyQuery{OnlyOpen: true})
	if err != nil {
		t.Fatal(err)
	}
	var out []*types.Anomaly
	for _, a := range list {
		if a.RuleCode == code {
			out = append(out, a)
		}
	}
	return out
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestPaymentFailureSpikeCreatedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, ts := range []string{"2026-03-01T10:01:00Z", "2026-03-01T10:02:00Z", "2026-03-01T10:03:00Z"} {
		f.addFailure(t, fmt.Sprintf("evt_%d", i), at(t, ts))
	}
	now := at(t, "2026-03-01T10:04:00Z")

	out, err := f.eval.Evaluate(ctx, PaymentFailureSpike, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !out.Created {
		t.Fatal("expected anomaly to be created")
	}

	open := f.open(t, PaymentFailureSpike)
	if len(open) != 1 {
		t.Fatalf("expected 1 open anomaly, got %d", len(open))
	}
	a := open[0]
	if got, _ := a.Evidence["failed_count"].(float64); got != 3 {
		t.Errorf("failed_count = %v, want 3", a.Evidence["failed_count"])
	}
	if a.Severity != types.SeverityHigh || a.Title != "Payment failure spike" {
		t.Errorf("unexpected severity/title: %s %q", a.Severity, a.Title)
	}
	if !a.WindowStart.Equal(at(t, "2026-03-01T10:00:00Z")) || !a.WindowEnd.Equal(at(t, "2026-03-01T10:30:00Z")) {
		t.Errorf("unexpected window %v - %v", a.WindowStart, a.WindowEnd)
	}
	if !a.DetectedAt.Equal(now) {
		t.Errorf("detected_at = %v, want %v", a.DetectedAt, now)
	}

	// A 4th failure in the same bucket does not create another anomaly.
	f.addFailure(t, "evt_4", at(t, "2026-03-01T10:05:00Z"))
	out, err = f.eval.Evaluate(ctx, PaymentFailureSpike, at(t, "2026-03-01T10:06:00Z"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Created || !out.Triggered || out.AnomalyID != a.ID {
		t.Errorf("expected existing anomaly %d, got %+v", a.ID, out)
	}
	if n := len(f.open(t, PaymentFailureSpike)); n != 1 {
		t.Errorf("expected 1 open anomaly, got %d", n)
	}
	if len(f.notifier.messages) != 1 {
		t.Errorf("expected 1 notification, got %d", len(f.notifier.messages))
	}
}

func TestPaymentFailureSpikeBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.addFailure(t, "evt_1", at(t, "2026-03-01T10:01:00Z"))
	f.addFailure(t, "evt_2", at(t, "2026-03-01T10:02:00Z"))
	// Outside the bucket.
	f.addFailure(t, "evt_3", at(t, "2026-03-01T09:59:00Z"))

	out, err := f.eval.Evaluate(context.Background(), PaymentFailureSpike, at(t, "2026-03-01T10:10:00Z"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Triggered {
		t.Error("expected no trigger")
	}
}

func TestRapidRetryFailure(t *testing.T) {
	f := newFixture(t)
	f.addFailure(t, "evt_1", at(t, "2026-03-01T10:05:10Z"))
	f.addFailure(t, "evt_2", at(t, "2026-03-01T10:06:30Z"))

	out, err := f.eval.Evaluate(context.Background(), RapidRetryFailure, at(t, "2026-03-01T10:07:42Z"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Created {
		t.Fatal("expected anomaly")
	}
	if !out.WindowStart.Equal(at(t, "2026-03-01T10:05:00Z")) || !out.WindowEnd.Equal(at(t, "2026-03-01T10:10:00Z")) {
		t.Errorf("unexpected window %v - %v", out.WindowStart, out.WindowEnd)
	}
	a := f.open(t, RapidRetryFailure)[0]
	if a.Evidence["threshold"] != float64(2) || a.Evidence["window_minutes"] != float64(5) {
		t.Errorf("unexpected evidence %v", a.Evidence)
	}
}

func TestWebhookIntegrityCountsAllInvalid(t *testing.T) {
	f := newFixture(t)
	base := at(t, "2026-03-01T10:00:00Z")
	for i := 0; i < 7; i++ {
		f.addInvalid(t, base.Add(time.Duration(i)*time.Minute))
	}

	out, err := f.eval.Evaluate(context.Background(), WebhookIntegrity, base.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Created {
		t.Fatal("expected anomaly")
	}
	a := f.open(t, WebhookIntegrity)[0]
	if a.Evidence["invalid_event_count"] != float64(7) {
		t.Errorf("invalid_event_count = %v, want 7", a.Evidence["invalid_event_count"])
	}
	samples, _ := a.Evidence["sample_event_ids"].([]any)
	if len(samples) != 5 {
		t.Fatalf("expected 5 sample ids, got %v", a.Evidence["sample_event_ids"])
	}
	if samples[0] != float64(7) {
		t.Errorf("expected newest event first, got %v", samples)
	}
}

func TestEvaluateAllIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addInvalid(t, at(t, "2026-03-01T10:01:00Z"))
	f.addFailure(t, "evt_1", at(t, "2026-03-01T10:01:00Z"))
	f.addFailure(t, "evt_2", at(t, "2026-03-01T10:02:00Z"))
	f.addFailure(t, "evt_3", at(t, "2026-03-01T10:03:00Z"))
	now := at(t, "2026-03-01T10:04:00Z")

	for i := 0; i < 3; i++ {
		if err := f.eval.EvaluateAll(ctx, now); err != nil {
			t.Fatalf("EvaluateAll #%d: %v", i, err)
		}
	}

	for _, code := range []string{WebhookIntegrity, PaymentFailureSpike, RapidRetryFailure} {
		if n := len(f.open(t, code)); n != 1 {
			t.Errorf("%s: expected 1 open anomaly, got %d", code, n)
		}
	}
	if n := len(f.notifier.messages); n != 3 {
		t.Errorf("expected 3 notifications, got %d", n)
	}
}

func TestNotificationFailureKeepsAnomaly(t *testing.T) {
	f := newFixture(t)
	f.notifier.NotifyFn = func(context.Context, string) (string, error) {
		return "", errors.New("slack down")
	}
	f.addFailure(t, "evt_1", at(t, "2026-03-01T10:05:10Z"))
	f.addFailure(t, "evt_2", at(t, "2026-03-01T10:06:30Z"))

	out, err := f.eval.Evaluate(context.Background(), RapidRetryFailure, at(t, "2026-03-01T10:07:00Z"))
	if err != nil {
		t.Fatalf("notification failure leaked: %v", err)
	}
	if !out.Created || len(f.open(t, RapidRetryFailure)) != 1 {
		t.Error("expected anomaly to persist")
	}
}

type failingEvents struct {
	types.EventStore
}

func (f *failingEvents) Count(ctx context.Context, filter types.EventFilter) (int, error) {
	if filter.Status == types.EventInvalid {
		return 0, errors.New("disk on fire")
	}
	return f.EventStore.Count(ctx, filter)
}

func TestEvaluateAllContinuesPastFailure(t *testing.T) {
	f := newFixture(t)
	f.addFailure(t, "evt_1", at(t, "2026-03-01T10:01:00Z"))
	f.addFailure(t, "evt_2", at(t, "2026-03-01T10:02:00Z"))
	f.addFailure(t, "evt_3", at(t, "2026-03-01T10:03:00Z"))

	eval := NewEvaluator(&failingEvents{EventStore: f.events}, f.anomalies)
	err := eval.EvaluateAll(context.Background(), at(t, "2026-03-01T10:04:00Z"))
	if err == nil || !strings.Contains(err.Error(), WebhookIntegrity) {
		t.Fatalf("expected webhook_integrity error, got %v", err)
	}
	if n := len(f.open(t, PaymentFailureSpike)); n != 1 {
		t.Errorf("later rules should still run, got %d anomalies", n)
	}
}

func TestEvaluateUnknownRule(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eval.Evaluate(context.Background(), RefundSpike, time.Now()); err == nil {
		t.Error("expected error for rule without evaluator")
	}
}

func TestEvaluatorOrder(t *testing.T) {
	f := newFixture(t)
	got := strings.Join(f.eval.Codes(), ",")
	want := "webhook_integrity,payment_failure_spike,rapid_retry_failure"
	if got != want {
		t.Errorf("Codes() = %s, want %s", got, want)
	}
}
