// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

type EventStore interface {
	// InsertVerified stores a verified event. deduped is true when an event with
	// the same provider id already exists.
	InsertVerified(ctx context.Context, event *Event) (deduped bool, err error)
	InsertInvalid(ctx context.Context, event *Event) error
	Count(ctx context.Context, filter EventFilter) (int, error)
	// Recent returns up to limit matching events, newest first.
	Recent(ctx context.Context, filter EventFilter, limit int) ([]*Event, error)
	TopTypes(ctx context.Context, from, to time.Time, limit int) ([]TypeCount, error)
	Ping(ctx context.Context) error
}

type AnomalyStore interface {
	// CreateIfNoneOpen inserts the anomaly unless an open one already exists for
	// the same rule code and window. It reports the existing row when skipped.
	CreateIfNoneOpen(ctx context.Context, anomaly *Anomaly) (created bool, existing *Anomaly, err error)
	Get(ctx context.Context, id AnomalyID) (*Anomaly, error)
	// Mutate loads the anomaly inside a transaction and persists it if fn
	// returns nil. Nothing is written when fn fails.
	Mutate(ctx context.Context, id AnomalyID, fn func(*Anomaly) error) (*Anomaly, error)
	List(ctx context.Context, q AnomalyQuery) ([]*Anomaly, error)
	FindOpenDemo(ctx context.Context, ruleCode string) (*Anomaly, error)
	SignalCounts(ctx context.Context, from, to time.Time) ([]SignalCount, error)
	CountOpen(ctx context.Context, from, to time.Time) (int, error)
}

type DeliveryStore interface {
	Get(ctx context.Context, kind, summaryDate string) (*Delivery, error)
	// Insert fails with a duplicate error when (kind, summary_date) exists.
	Insert(ctx context.Context, d *Delivery) error
	// Claim moves a row to sending only if its status and updated_at still
	// match prev. It reports whether this caller won the row.
	Claim(ctx context.Context, prev *Delivery, next *Delivery) (bool, error)
	Finalize(ctx context.Context, d *Delivery) error
}

// Notifier posts a preformatted text message to a chat channel and returns the
// channel's short response.
type Notifier interface {
	Notify(ctx context.Context, text string) (string, error)
}
