package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/user/sentinelops/internal/types"
)

func TestSeedDemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 17, 42, 0, time.UTC)

	results, err := SeedDemo(ctx, f.anomalies, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Created || r.ID == 0 {
			t.Errorf("expected %s to be created, got %+v", r.RuleCode, r)
		}
		a, err := f.anomalies.Get(ctx, r.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(a.Title, DemoPrefix) {
			t.Errorf("title %q missing demo prefix", a.Title)
		}
		if a.Evidence["demo"] != true {
			t.Errorf("evidence missing demo flag: %v", a.Evidence)
		}
		if a.Status != types.StatusOpen {
			t.Errorf("expected open, got %s", a.Status)
		}
	}

	spike, _ := f.anomalies.Get(ctx, results[0].ID)
	if spike.Severity != types.SeverityHigh {
		t.Errorf("payment spike severity = %s", spike.Severity)
	}
	if !spike.WindowStart.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("window start = %s", spike.WindowStart)
	}
	retry, _ := f.anomalies.Get(ctx, results[1].ID)
	if retry.Severity != types.SeverityMedium {
		t.Errorf("rapid retry severity = %s", retry.Severity)
	}
	if !retry.WindowEnd.Equal(time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)) {
		t.Errorf("window end = %s", retry.WindowEnd)
	}
}

func TestSeedDemoSkipsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first, err := SeedDemo(ctx, f.anomalies, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := SeedDemo(ctx, f.anomalies, now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range second {
		if r.Created {
			t.Errorf("%s should not be seeded twice", r.RuleCode)
		}
		if r.ID != first[i].ID {
			t.Errorf("%s: expected existing id %d, got %d", r.RuleCode, first[i].ID, r.ID)
		}
	}

	all, err := f.anomalies.List(ctx, types.AnomalyQuery{DemoOnly: true, Limit: 50, Sort: types.SortRecent})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 demo anomalies, got %d", len(all))
	}
}
