// internal/rules/seed.go
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// DemoPrefix marks the title of a seeded anomaly.
const DemoPrefix = "[demo] "

// SeedResult reports what SeedDemo did for one rule.
type SeedResult struct {
	RuleCode string          `json:"rule_code"`
	Created  bool            `json:"created"`
	ID       types.AnomalyID `json:"id"`
}

type demoSeed struct {
	code     string
	severity types.Severity
	title    string
	bucket   time.Duration
	evidence map[string]any
}

func demoSeeds() []demoSeed {
	return []demoSeed{
		{
			code:     PaymentFailureSpike,
			severity: types.SeverityHigh,
			title:    "Payment failure spike (30m)",
			bucket:   30 * time.Minute,
			evidence: map[string]any{
				"window_minutes": 30,
				"threshold":      3,
				"failed_count":   5,
				"note":           "Seeded for demo lifecycle (open → ack → resolve).",
			},
		},
		{
			code:     RapidRetryFailure,
			severity: types.SeverityMedium,
			title:    "Rapid payment failure retries (5m)",
			bucket:   5 * time.Minute,
			evidence: map[string]any{
				"window_minutes": 5,
				"threshold":      2,
				"failed_count":   3,
				"note":           "Seeded for demo. Represents short-window burst failures.",
			},
		},
		{
			code:     WebhookIntegrity,
			severity: types.SeverityLow,
			title:    "Webhook integrity anomaly",
			bucket:   30 * time.Minute,
			evidence: map[string]any{
				"window_minutes":      30,
				"invalid_event_count": 3,
				"sample_event_ids":    []int{101, 102, 103},
				"note":                "Seeded for demo. Simulates invalid signature / malformed events.",
			},
		},
	}
}

// SeedDemo creates one open demo anomaly per evaluated rule, skipping rules
// that already have one.
func SeedDemo(ctx context.Context, store types.AnomalyStore, now time.Time) ([]SeedResult, error) {
	now = now.UTC()
	var out []SeedResult
	for _, s := range demoSeeds() {
		existing, err := store.FindOpenDemo(ctx, s.code)
		if err != nil {
			return out, fmt.Errorf("find demo anomaly %s: %w", s.code, err)
		}
		if existing != nil {
			out = append(out, SeedResult{RuleCode: s.code, ID: existing.ID})
			continue
		}

		start, end := Window(now, s.bucket)
		evidence := map[string]any{"demo": true}
		for k, v := range s.evidence {
			evidence[k] = v
		}
		a := &types.Anomaly{
			RuleCode:    s.code,
			Severity:    s.severity,
			Title:       DemoPrefix + s.title,
			Status:      types.StatusOpen,
			WindowStart: &start,
			WindowEnd:   &end,
			DetectedAt:  now,
			Evidence:    evidence,
			UpdatedAt:   now,
		}
		created, found, err := store.CreateIfNoneOpen(ctx, a)
		if err != nil {
			return out, fmt.Errorf("create demo anomaly %s: %w", s.code, err)
		}
		if !created {
			out = append(out, SeedResult{RuleCode: s.code, ID: found.ID})
			continue
		}
		out = append(out, SeedResult{RuleCode: s.code, Created: true, ID: a.ID})
	}
	return out, nil
}
