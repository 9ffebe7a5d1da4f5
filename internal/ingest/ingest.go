// internal/ingest/ingest.go
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/metrics"
	"github.com/user/sentinelops/internal/stripe"
	"github.com/user/sentinelops/internal/types"
)

// Outcome of saving a verified event.
type Outcome string

const (
	Saved   Outcome = "saved"
	Deduped Outcome = "deduped"
)

// Service records webhook deliveries in the event store.
type Service struct {
	events types.EventStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an ingestion service.
func NewService(events types.EventStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{events: events, logger: logger, now: time.Now}
}

// SetClock overrides the time source used for created_at.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SaveVerified stores a verified event. A provider id seen before is
// reported as Deduped, not as an error.
func (s *Service) SaveVerified(ctx context.Context, ev *stripe.Event, signature string) (Outcome, error) {
	row := &types.Event{
		Source:          "stripe",
		ProviderEventID: types.StringPtr(ev.ID),
		EventType:       types.StringPtr(ev.Type),
		Signature:       optional(signature),
		Livemode:        ev.Livemode,
		Raw:             ev.Raw,
		CreatedAt:       s.now().UTC(),
	}
	if !ev.Created.IsZero() {
		row.CreatedAtProvider = types.TimePtr(ev.Created)
	}

	deduped, err := s.events.InsertVerified(ctx, row)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return "", fmt.Errorf("save event %s: %w", ev.ID, err)
	}
	if deduped {
		metrics.WebhookEvents.WithLabelValues("deduped").Inc()
		s.logger.Info("webhook event deduped", "provider_event_id", ev.ID)
		return Deduped, nil
	}

	metrics.WebhookEvents.WithLabelValues("saved").Inc()
	metrics.WebhookEventTypes.WithLabelValues(stripe.TypeLabel(ev.Type)).Inc()
	s.logger.Info("webhook event saved", "provider_event_id", ev.ID, "event_type", ev.Type)
	return Saved, nil
}

// SaveInvalid records a delivery that failed verification. Storage errors
// are logged and swallowed.
func (s *Service) SaveInvalid(ctx context.Context, payload []byte, signature, reason string) {
	metrics.WebhookEvents.WithLabelValues("invalid").Inc()

	raw, err := json.Marshal(map[string]string{
		"error":   reason,
		"payload": strings.ToValidUTF8(string(payload), "�"),
	})
	if err != nil {
		s.logger.Error("encode invalid event", "error", err)
		return
	}
	row := &types.Event{
		Source:    "stripe",
		Signature: optional(signature),
		Raw:       raw,
		CreatedAt: s.now().UTC(),
	}
	if err := s.events.InsertInvalid(ctx, row); err != nil {
		s.logger.Error("record invalid event failed", "reason", reason, "error", err)
		return
	}
	s.logger.Warn("invalid webhook event recorded", "event_id", row.ID, "reason", reason)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
