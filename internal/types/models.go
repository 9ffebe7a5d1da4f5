// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventVerified EventStatus = "verified"
	EventInvalid  EventStatus = "invalid"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for sorting. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type AnomalyStatus string

const (
	StatusOpen         AnomalyStatus = "open"
	StatusAcknowledged AnomalyStatus = "acknowledged"
	StatusResolved     AnomalyStatus = "resolved"
)

// Valid reports whether s is one of the three lifecycle states.
func (s AnomalyStatus) Valid() bool {
	return s == StatusOpen || s == StatusAcknowledged || s == StatusResolved
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Event is one ingested provider webhook, verified or not. Immutable once stored.
type Event struct {
	ID                EventID         `json:"id"`
	Source            string          `json:"source"`
	ProviderEventID   *string         `json:"provider_event_id,omitempty"`
	EventType         *string         `json:"event_type,omitempty"`
	Status            EventStatus     `json:"status"`
	Signature         *string         `json:"signature,omitempty"`
	Livemode          *bool           `json:"livemode,omitempty"`
	CreatedAtProvider *time.Time      `json:"created_at_provider,omitempty"`
	Raw               json.RawMessage `json:"raw"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Anomaly is a persisted rule trigger carrying a review status.
type Anomaly struct {
	ID              AnomalyID      `json:"id"`
	RuleCode        string         `json:"rule_code"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Status          AnomalyStatus  `json:"status"`
	EventType       *string        `json:"event_type"`
	ProviderEventID *string        `json:"provider_event_id"`
	WindowStart     *time.Time     `json:"window_start"`
	WindowEnd       *time.Time     `json:"window_end"`
	DetectedAt      time.Time      `json:"detected_at"`
	Evidence        map[string]any `json:"evidence"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at"`
	ResolvedAt      *time.Time     `json:"resolved_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Delivery is a daily summary ledger row, unique per (Kind, SummaryDate).
type Delivery struct {
	ID            DeliveryID     `json:"id"`
	Kind          string         `json:"kind"`
	SummaryDate   string         `json:"summary_date"`
	Status        DeliveryStatus `json:"status"`
	WindowStart   *time.Time     `json:"window_start"`
	WindowEnd     *time.Time     `json:"window_end"`
	DeliveredAt   *time.Time     `json:"delivered_at"`
	UsedAI        *bool          `json:"used_ai"`
	AIError       *string        `json:"ai_error"`
	SlackResponse *string        `json:"slack_response"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// EventFilter restricts event queries. Zero values mean "no restriction",
// except the window, which is always applied as [From, To).
type EventFilter struct {
	Status EventStatus
	Types  []string
	From   time.Time
	To     time.Time
}

// TypeCount is an event type with its number of occurrences.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
}

// SignalCount is the number of anomalies detected for one (rule, severity).
type SignalCount struct {
	RuleCode string   `json:"rule_code"`
	Severity Severity `json:"severity"`
	HitCount int      `json:"hit_count"`
}

type AnomalySort string

const (
	SortRecent       AnomalySort = "recent"
	SortSeverityDesc AnomalySort = "severity_desc"
)

// AnomalyQuery selects anomalies for the read API.
type AnomalyQuery struct {
	Status   AnomalyStatus
	OnlyOpen bool
	Sort     AnomalySort
	Limit    int
	DemoOnly bool
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
