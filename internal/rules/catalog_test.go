package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/user/sentinelops/internal/types"
)

func TestCatalog(t *testing.T) {
	cat := Catalog()
	if len(cat) != 6 {
		t.Fatalf("expected 6 rules, got %d", len(cat))
	}
	seen := map[string]bool{}
	for _, r := range cat {
		if seen[r.Code] {
			t.Errorf("duplicate rule code %s", r.Code)
		}
		seen[r.Code] = true
		if r.Title == "" || r.Severity.Rank() == 0 {
			t.Errorf("rule %s is incomplete: %+v", r.Code, r)
		}
	}

	// Mutating the copy leaves the registry intact.
	cat[0].Title = "changed"
	if def, _ := Lookup(cat[0].Code); def.Title == "changed" {
		t.Error("Catalog must return a copy")
	}
}

func TestLookup(t *testing.T) {
	def, ok := Lookup(WebhookIntegrity)
	if !ok || def.Severity != types.SeverityLow || def.Title != "Webhook integrity anomaly" {
		t.Errorf("unexpected definition %+v", def)
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("expected unknown code to miss")
	}
}

func TestNotificationText(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	text := NotificationText(&types.Anomaly{
		RuleCode:    PaymentFailureSpike,
		Severity:    types.SeverityHigh,
		Status:      types.StatusOpen,
		WindowStart: &start,
		WindowEnd:   &end,
		Evidence:    map[string]any{"failed_count": 3},
	})

	lines := strings.Split(text, "\n")
	want := []string{
		"🚨 *SentinelOps Anomaly Detected*",
		"*Rule:* payment_failure_spike",
		"*Severity:* high",
		"*Status:* open",
		"*Window:* 2026-03-01T10:00:00Z ~ 2026-03-01T10:30:00Z",
		"*Evidence:* `{\"failed_count\":3}`",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), text)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestNotificationTextWithoutWindow(t *testing.T) {
	text := NotificationText(&types.Anomaly{RuleCode: AmountSpike, Severity: types.SeverityMedium, Status: types.StatusOpen})
	if strings.Contains(text, "Window") || strings.Contains(text, "Evidence") {
		t.Errorf("unexpected optional lines:\n%s", text)
	}
}
