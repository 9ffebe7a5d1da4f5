// internal/state/anomaly.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// AnomalyStore persists detected anomalies.
type AnomalyStore struct {
	db *DB
}

// NewAnomalyStore creates an AnomalyStore on the shared database.
func NewAnomalyStore(db *DB) *AnomalyStore {
	return &AnomalyStore{db: db}
}

const anomalyColumns = `id, rule_code, severity, title, status, event_type, provider_event_id,
	window_start, window_end, detected_at, evidence, acknowledged_at, resolved_at, updated_at`

const demoCondition = `(json_extract(evidence, '$.demo') = 1
	OR json_extract(evidence, '$._demo') = 1
	OR title LIKE '[demo]%')`

const severityRankSQL = `CASE severity
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

// CreateIfNoneOpen inserts the anomaly unless an open anomaly with the same
// rule code and identical window exists. The lookup and the insert share one
// immediate transaction.
func (s *AnomalyStore) CreateIfNoneOpen(ctx context.Context, a *types.Anomaly) (bool, *types.Anomaly, error) {
	var existing *types.Anomaly
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		found, err := findOpen(ctx, tx, a.RuleCode, a.WindowStart, a.WindowEnd)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}
		return insertAnomaly(ctx, tx, a)
	})
	if err != nil {
		return false, nil, err
	}
	return existing == nil, existing, nil
}

// Create inserts the anomaly unconditionally.
func (s *AnomalyStore) Create(ctx context.Context, a *types.Anomaly) error {
	return insertAnomaly(ctx, s.db.sql, a)
}

func findOpen(ctx context.Context, q querier, ruleCode string, windowStart, windowEnd *time.Time) (*types.Anomaly, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+anomalyColumns+`
		FROM anomalies
		WHERE rule_code = ? AND status = 'open' AND window_start IS ? AND window_end IS ?
		ORDER BY id ASC
		LIMIT 1`,
		ruleCode, nullTime(windowStart), nullTime(windowEnd))
	a, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func insertAnomaly(ctx context.Context, q querier, a *types.Anomaly) error {
	if a.Status == "" {
		a.Status = types.StatusOpen
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.DetectedAt
	}
	if a.Evidence == nil {
		a.Evidence = map[string]any{}
	}
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO anomalies (
			rule_code, severity, title, status, event_type, provider_event_id,
			window_start, window_end, detected_at, evidence,
			acknowledged_at, resolved_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RuleCode, string(a.Severity), a.Title, string(a.Status),
		nullString(a.EventType), nullString(a.ProviderEventID),
		nullTime(a.WindowStart), nullTime(a.WindowEnd),
		formatTime(a.DetectedAt), string(evidence),
		nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("anomaly id: %w", err)
	}
	a.ID = types.AnomalyID(id)
	return nil
}

// Get returns the anomaly with the given id or ErrNotFound.
func (s *AnomalyStore) Get(ctx context.Context, id types.AnomalyID) (*types.Anomaly, error) {
	return getAnomaly(ctx, s.db.sql, id)
}

func getAnomaly(ctx context.Context, q querier, id types.AnomalyID) (*types.Anomaly, error) {
	row := q.QueryRowContext(ctx, "SELECT "+anomalyColumns+" FROM anomalies WHERE id = ?", int64(id))
	a, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("anomaly %d: %w", id, ErrNotFound)
	}
	return a, err
}

// Mutate loads the anomaly in a transaction, applies fn and persists the
// lifecycle fields (status, acknowledged_at, resolved_at, updated_at). When fn
// fails the transaction rolls back and the row is left unchanged.
func (s *AnomalyStore) Mutate(ctx context.Context, id types.AnomalyID, fn func(*types.Anomaly) error) (*types.Anomaly, error) {
	var out *types.Anomaly
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := getAnomaly(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE anomalies
			SET status = ?, acknowledged_at = ?, resolved_at = ?, updated_at = ?
			WHERE id = ?`,
			string(a.Status), nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt),
			formatTime(a.UpdatedAt), int64(a.ID)); err != nil {
			return fmt.Errorf("update anomaly: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns anomalies for the read API.
func (s *AnomalyStore) List(ctx context.Context, q types.AnomalyQuery) ([]*types.Anomaly, error) {
	var (
		clauses []string
		args    []any
	)
	if q.OnlyOpen {
		clauses = append(clauses, "status = 'open'")
	} else if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.DemoOnly {
		clauses = append(clauses, demoCondition)
	}

	query := "SELECT " + anomalyColumns + " FROM anomalies"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if q.Sort == types.SortSeverityDesc {
		query += " ORDER BY " + severityRankSQL + " DESC, detected_at DESC, id DESC"
	} else {
		query += " ORDER BY detected_at DESC, id DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return s.queryAnomalies(ctx, query, args...)
}

// FindOpenDemo returns the newest open demo anomaly for the rule, or nil.
func (s *AnomalyStore) FindOpenDemo(ctx context.Context, ruleCode string) (*types.Anomaly, error) {
	list, err := s.queryAnomalies(ctx, `
		SELECT `+anomalyColumns+`
		FROM anomalies
		WHERE rule_code = ? AND status = 'open' AND `+demoCondition+`
		ORDER BY detected_at DESC
		LIMIT 1`, ruleCode)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (s *AnomalyStore) queryAnomalies(ctx context.Context, query string, args ...any) ([]*types.Anomaly, error) {
	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	out := []*types.Anomaly{}
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomalies: %w", err)
	}
	return out, nil
}

// SignalCounts groups anomalies detected in [from, to) by rule and severity,
// most frequent first.
func (s *AnomalyStore) SignalCounts(ctx context.Context, from, to time.Time) ([]types.SignalCount, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT rule_code, severity, COUNT(*) AS hit_count
		FROM anomalies
		WHERE detected_at >= ? AND detected_at < ?
		GROUP BY rule_code, severity
		ORDER BY hit_count DESC, rule_code ASC`,
		formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("query signal counts: %w", err)
	}
	defer rows.Close()

	var out []types.SignalCount
	for rows.Next() {
		var (
			sc  types.SignalCount
			sev string
		)
		if err := rows.Scan(&sc.RuleCode, &sev, &sc.HitCount); err != nil {
			return nil, fmt.Errorf("scan signal count: %w", err)
		}
		sc.Severity = types.Severity(sev)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CountOpen counts anomalies detected in [from, to) that are still open.
func (s *AnomalyStore) CountOpen(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM anomalies
		WHERE detected_at >= ? AND detected_at < ? AND status = 'open'`,
		formatTime(from), formatTime(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open anomalies: %w", err)
	}
	return n, nil
}

func scanAnomaly(r rowScanner) (*types.Anomaly, error) {
	var (
		a                          types.Anomaly
		severity, status, evidence string
		detectedAt, updatedAt      string
		eventType, providerID      sql.NullString
		windowStart, windowEnd     sql.NullString
		acknowledgedAt, resolvedAt sql.NullString
	)
	err := r.Scan(&a.ID, &a.RuleCode, &severity, &a.Title, &status, &eventType, &providerID,
		&windowStart, &windowEnd, &detectedAt, &evidence, &acknowledgedAt, &resolvedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan anomaly: %w", err)
	}
	a.Severity = types.Severity(severity)
	a.Status = types.AnomalyStatus(status)
	a.EventType = scanNullString(eventType)
	a.ProviderEventID = scanNullString(providerID)

	if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if a.Evidence == nil {
		a.Evidence = map[string]any{}
	}
	if a.WindowStart, err = scanNullTime(windowStart); err != nil {
		return nil, err
	}
	if a.WindowEnd, err = scanNullTime(windowEnd); err != nil {
		return nil, err
	}
	if a.AcknowledgedAt, err = scanNullTime(acknowledgedAt); err != nil {
		return nil, err
	}
	if a.ResolvedAt, err = scanNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if a.DetectedAt, err = parseTime(detectedAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
