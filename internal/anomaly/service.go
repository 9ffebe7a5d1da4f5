// internal/anomaly/service.go
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/sentinelops/internal/metrics"
	"github.com/user/sentinelops/internal/types"
)

// Limits applied to list queries.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Service is the read and mutate surface for anomalies.
type Service struct {
	store  types.AnomalyStore
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service over store.
func NewService(store types.AnomalyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// SetClock overrides the time source used for transitions.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// List returns anomalies matching q. Limit defaults to 50 and is capped at 200.
func (s *Service) List(ctx context.Context, q types.AnomalyQuery) ([]*types.Anomaly, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, q.Status)
	}
	switch q.Sort {
	case "", types.SortRecent, types.SortSeverityDesc:
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidSort, q.Sort)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return s.store.List(ctx, q)
}

// Get returns a single anomaly.
func (s *Service) Get(ctx context.Context, id types.AnomalyID) (*types.Anomaly, error) {
	return s.store.Get(ctx, id)
}

// UpdateStatus moves the anomaly to status. Illegal moves return ErrConflict
// and unknown statuses ErrInvalidStatus; neither changes the row.
func (s *Service) UpdateStatus(ctx context.Context, id types.AnomalyID, status types.AnomalyStatus) (*types.Anomaly, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var from types.AnomalyStatus
	a, err := s.store.Mutate(ctx, id, func(a *types.Anomaly) error {
		from = a.Status
		return Apply(a, status, s.now())
	})
	if err != nil {
		return nil, err
	}
	metrics.AnomalyTransitions.WithLabelValues(string(status)).Inc()
	s.logger.Info("anomaly status changed", "anomaly_id", id, "from", from, "to", status)
	return a, nil
}

// Acknowledge is UpdateStatus(id, acknowledged).
func (s *Service) Acknowledge(ctx context.Context, id types.AnomalyID) (*types.Anomaly, error) {
	return s.UpdateStatus(ctx, id, types.StatusAcknowledged)
}

// Resolve is UpdateStatus(id, resolved).
func (s *Service) Resolve(ctx context.Context, id types.AnomalyID) (*types.Anomaly, error) {
	return s.UpdateStatus(ctx, id, types.StatusResolved)
}
