// internal/anomaly/lifecycle.go
package anomaly

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/sentinelops/internal/types"
)

var (
	// ErrConflict is returned for a same-status or disallowed transition.
	ErrConflict = errors.New("status transition conflict")
	// ErrInvalidStatus is returned for a status outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidSort is returned for an unknown list ordering.
	ErrInvalidSort = errors.New("invalid sort")
)

var allowed = map[types.AnomalyStatus]map[types.AnomalyStatus]bool{
	types.StatusOpen:         {types.StatusAcknowledged: true, types.StatusResolved: true},
	types.StatusAcknowledged: {types.StatusResolved: true, types.StatusOpen: true},
	types.StatusResolved:     {types.StatusOpen: true},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to types.AnomalyStatus) bool {
	return allowed[from][to]
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (types.AnomalyStatus, error) {
	st := types.AnomalyStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Apply moves a to status `to` at now and sets the lifecycle timestamps.
// On error a is left untouched.
func Apply(a *types.Anomaly, to types.AnomalyStatus, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	from := a.Status
	if from == to {
		return fmt.Errorf("%w: no-op transition %s -> %s", ErrConflict, from, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrConflict, from, to)
	}

	now = now.UTC()
	a.Status = to
	switch to {
	case types.StatusAcknowledged:
		a.AcknowledgedAt = types.TimePtr(now)
		a.ResolvedAt = nil
	case types.StatusResolved:
		if a.AcknowledgedAt == nil {
			a.AcknowledgedAt = types.TimePtr(now)
		}
		a.ResolvedAt = types.TimePtr(now)
	case types.StatusOpen:
		a.AcknowledgedAt = nil
		a.ResolvedAt = nil
	}
	a.UpdatedAt = now
	return nil
}
