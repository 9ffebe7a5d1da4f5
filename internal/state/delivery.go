// internal/state/delivery.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// DeliveryStore persists the daily summary delivery ledger. The unique
// constraint on (kind, summary_date) is what makes a delivery happen once.
type DeliveryStore struct {
	db *DB
}

// NewDeliveryStore creates a DeliveryStore on the shared database.
func NewDeliveryStore(db *DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

const deliveryColumns = `id, kind, summary_date, status, window_start, window_end,
	delivered_at, used_ai, ai_error, slack_response, created_at, updated_at`

// Get returns the ledger row for (kind, summaryDate) or ErrNotFound.
func (s *DeliveryStore) Get(ctx context.Context, kind, summaryDate string) (*types.Delivery, error) {
	row := s.db.sql.QueryRowContext(ctx,
		"SELECT "+deliveryColumns+" FROM daily_summary_deliveries WHERE kind = ? AND summary_date = ?",
		kind, summaryDate)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery %s/%s: %w", kind, summaryDate, ErrNotFound)
	}
	return d, err
}

// Insert creates the ledger row. A concurrent insert for the same
// (kind, summary_date) fails with ErrDuplicate.
func (s *DeliveryStore) Insert(ctx context.Context, d *types.Delivery) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	if d.Status == "" {
		d.Status = types.DeliveryPending
	}

	res, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO daily_summary_deliveries (
			kind, summary_date, status, window_start, window_end,
			delivered_at, used_ai, ai_error, slack_response, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Kind, d.SummaryDate, string(d.Status),
		nullTime(d.WindowStart), nullTime(d.WindowEnd), nullTime(d.DeliveredAt),
		nullBool(d.UsedAI), nullString(d.AIError), nullString(d.SlackResponse),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("delivery %s/%s: %w", d.Kind, d.SummaryDate, ErrDuplicate)
		}
		return fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("delivery id: %w", err)
	}
	d.ID = types.DeliveryID(id)
	return nil
}

// Claim overwrites the mutable fields of prev with next, but only while the
// stored status and updated_at still equal prev's. Exactly one of several
// concurrent claimers wins.
func (s *DeliveryStore) Claim(ctx context.Context, prev, next *types.Delivery) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE daily_summary_deliveries
		SET status = ?, window_start = ?, window_end = ?, delivered_at = ?,
			used_ai = ?, ai_error = ?, slack_response = ?, updated_at = ?
		WHERE id = ? AND status = ? AND updated_at = ?`,
		string(next.Status), nullTime(next.WindowStart), nullTime(next.WindowEnd),
		nullTime(next.DeliveredAt), nullBool(next.UsedAI), nullString(next.AIError),
		nullString(next.SlackResponse), formatTime(next.UpdatedAt),
		int64(prev.ID), string(prev.Status), formatTime(prev.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	return n == 1, nil
}

// Finalize writes the terminal state of a delivery attempt.
func (s *DeliveryStore) Finalize(ctx context.Context, d *types.Delivery) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE daily_summary_deliveries
		SET status = ?, delivered_at = ?, used_ai = ?, ai_error = ?,
			slack_response = ?, updated_at = ?
		WHERE id = ?`,
		string(d.Status), nullTime(d.DeliveredAt), nullBool(d.UsedAI),
		nullString(d.AIError), nullString(d.SlackResponse), formatTime(d.UpdatedAt),
		int64(d.ID),
	)
	if err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finalize delivery %d: %w", d.ID, ErrNotFound)
	}
	return nil
}

func scanDelivery(r rowScanner) (*types.Delivery, error) {
	var (
		d                                 types.Delivery
		status, createdAt, updatedAt      string
		windowStart, windowEnd, delivered sql.NullString
		aiError, slackResponse            sql.NullString
		usedAI                            sql.NullBool
	)
	err := r.Scan(&d.ID, &d.Kind, &d.SummaryDate, &status, &windowStart, &windowEnd,
		&delivered, &usedAI, &aiError, &slackResponse, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.Status = types.DeliveryStatus(status)
	d.UsedAI = scanNullBool(usedAI)
	d.AIError = scanNullString(aiError)
	d.SlackResponse = scanNullString(slackResponse)

	if d.WindowStart, err = scanNullTime(windowStart); err != nil {
		return nil, err
	}
	if d.WindowEnd, err = scanNullTime(windowEnd); err != nil {
		return nil, err
	}
	if d.DeliveredAt, err = scanNullTime(delivered); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
