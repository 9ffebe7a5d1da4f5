// internal/state/event.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// EventStore is an append-only SQLite store of ingested webhook events.
type EventStore struct {
	db *DB
}

// NewEventStore creates an EventStore on the shared database.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, source, provider_event_id, event_type, status, signature,
	livemode, created_at_provider, raw, created_at`

// InsertVerified stores a verified event. A provider event id that was already
// recorded yields deduped=true and no error.
func (s *EventStore) InsertVerified(ctx context.Context, event *types.Event) (bool, error) {
	event.Status = types.EventVerified
	if err := s.insert(ctx, event); err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// InsertInvalid stores an event that failed verification. Invalid events
// carry no provider id and are always inserted.
func (s *EventStore) InsertInvalid(ctx context.Context, event *types.Event) error {
	event.Status = types.EventInvalid
	event.ProviderEventID = nil
	return s.insert(ctx, event)
}

func (s *EventStore) insert(ctx context.Context, event *types.Event) error {
	if event.Source == "" {
		event.Source = "stripe"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	raw := event.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	res, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO events (
			source, provider_event_id, event_type, status, signature,
			livemode, created_at_provider, raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Source,
		nullString(event.ProviderEventID),
		nullString(event.EventType),
		string(event.Status),
		nullString(event.Signature),
		nullBool(event.Livemode),
		nullTime(event.CreatedAtProvider),
		string(raw),
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	event.ID = types.EventID(id)
	return nil
}

func eventWhere(f types.EventFilter) (string, []any) {
	clauses := []string{"created_at >= ?", "created_at < ?"}
	args := []any{formatTime(f.From), formatTime(f.To)}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(f.Types) > 0 {
		clauses = append(clauses, "event_type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	return strings.Join(clauses, " AND "), args
}

// Count returns the number of events matching the filter.
func (s *EventStore) Count(ctx context.Context, f types.EventFilter) (int, error) {
	where, args := eventWhere(f)
	var n int
	if err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Recent returns up to limit matching events, newest first.
func (s *EventStore) Recent(ctx context.Context, f types.EventFilter, limit int) ([]*types.Event, error) {
	where, args := eventWhere(f)
	args = append(args, limit)
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE "+where+" ORDER BY created_at DESC, id DESC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// TopTypes returns the most frequent non-null event types in [from, to).
func (s *EventStore) TopTypes(ctx context.Context, from, to time.Time, limit int) ([]types.TypeCount, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS cnt
		FROM events
		WHERE created_at >= ? AND created_at < ? AND event_type IS NOT NULL
		GROUP BY event_type
		ORDER BY cnt DESC, event_type ASC
		LIMIT ?`,
		formatTime(from), formatTime(to), limit)
	if err != nil {
		return nil, fmt.Errorf("query top event types: %w", err)
	}
	defer rows.Close()

	var out []types.TypeCount
	for rows.Next() {
		var tc types.TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*types.Event, error) {
	var (
		ev                         types.Event
		providerID, eventType, sig sql.NullString
		createdAtProvider          sql.NullString
		livemode                   sql.NullBool
		status, raw, createdAt     string
	)
	if err := r.Scan(&ev.ID, &ev.Source, &providerID, &eventType, &status, &sig,
		&livemode, &createdAtProvider, &raw, &createdAt); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.Status = types.EventStatus(status)
	ev.ProviderEventID = scanNullString(providerID)
	ev.EventType = scanNullString(eventType)
	ev.Signature = scanNullString(sig)
	ev.Livemode = scanNullBool(livemode)
	ev.Raw = json.RawMessage(raw)

	var err error
	if ev.CreatedAtProvider, err = scanNullTime(createdAtProvider); err != nil {
		return nil, err
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ev, nil
}
