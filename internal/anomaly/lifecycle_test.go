package anomaly

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/user/sentinelops/internal/types"
)

var statuses = []types.AnomalyStatus{types.StatusOpen, types.StatusAcknowledged, types.StatusResolved}

func genStatus() gopter.Gen {
	return gen.OneConstOf(types.StatusOpen, types.StatusAcknowledged, types.StatusResolved)
}

func TestProperty_Lifecycle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("illegal transitions conflict and leave the anomaly unchanged", prop.ForAll(
		func(from, to types.AnomalyStatus) bool {
			if CanTransition(from, to) {
				return true
			}
			a := &types.Anomaly{ID: 1, Status: from}
			err := Apply(a, to, time.Now())
			return errors.Is(err, ErrConflict) &&
				a.Status == from &&
				a.AcknowledgedAt == nil &&
				a.ResolvedAt == nil &&
				a.UpdatedAt.IsZero()
		},
		genStatus(),
		genStatus(),
	))

	properties.Property("legal transitions land on the target with updated_at = now", prop.ForAll(
		func(from, to types.AnomalyStatus, unix int64) bool {
			if !CanTransition(from, to) {
				return true
			}
			now := time.Unix(unix, 0).UTC()
			a := &types.Anomaly{ID: 1, Status: from}
			if err := Apply(a, to, now); err != nil {
				return false
			}
			if a.Status != to || !a.UpdatedAt.Equal(now) {
				return false
			}
			switch to {
			case types.StatusOpen:
				return a.AcknowledgedAt == nil && a.ResolvedAt == nil
			case types.StatusAcknowledged:
				return a.AcknowledgedAt != nil && a.AcknowledgedAt.Equal(now) && a.ResolvedAt == nil
			default:
				return a.AcknowledgedAt != nil && a.ResolvedAt != nil && a.ResolvedAt.Equal(now)
			}
		},
		genStatus(),
		genStatus(),
		gen.Int64Range(1_600_000_000, 2_000_000_000),
	))

	properties.TestingRun(t)
}

func TestTransitionTable(t *testing.T) {
	want := map[[2]types.AnomalyStatus]bool{
		{types.StatusOpen, types.StatusAcknowledged}:     true,
		{types.StatusOpen, types.StatusResolved}:         true,
		{types.StatusAcknowledged, types.StatusResolved}: true,
		{types.StatusAcknowledged, types.StatusOpen}:     true,
		{types.StatusResolved, types.StatusOpen}:         true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			if got := CanTransition(from, to); got != want[[2]types.AnomalyStatus{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestOpenToResolvedBackfillsAcknowledged(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &types.Anomaly{Status: types.StatusOpen}
	if err := Apply(a, types.StatusResolved, now); err != nil {
		t.Fatal(err)
	}
	if a.AcknowledgedAt == nil || a.ResolvedAt == nil || !a.AcknowledgedAt.Equal(*a.ResolvedAt) {
		t.Errorf("expected acknowledged_at == resolved_at, got %v / %v", a.AcknowledgedAt, a.ResolvedAt)
	}
}

func TestResolveKeepsEarlierAcknowledgement(t *testing.T) {
	acked := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	now := acked.Add(time.Hour)
	a := &types.Anomaly{Status: types.StatusAcknowledged, AcknowledgedAt: &acked}
	if err := Apply(a, types.StatusResolved, now); err != nil {
		t.Fatal(err)
	}
	if !a.AcknowledgedAt.Equal(acked) || !a.ResolvedAt.Equal(now) {
		t.Errorf("unexpected timestamps %v / %v", a.AcknowledgedAt, a.ResolvedAt)
	}
}

func TestReopenClearsTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	a := &types.Anomaly{Status: types.StatusResolved, AcknowledgedAt: &ts, ResolvedAt: &ts}
	if err := Apply(a, types.StatusOpen, ts.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if a.AcknowledgedAt != nil || a.ResolvedAt != nil {
		t.Error("reopen must clear timestamps")
	}
}

func TestApplyInvalidStatus(t *testing.T) {
	a := &types.Anomaly{Status: types.StatusOpen}
	if err := Apply(a, "closed", time.Now()); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := ParseStatus("closed"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if st, err := ParseStatus("resolved"); err != nil || st != types.StatusResolved {
		t.Errorf("ParseStatus(resolved) = %v, %v", st, err)
	}
}
