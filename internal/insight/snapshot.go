// internal/insight/snapshot.go
package insight

import "github.com/user/sentinelops/internal/types"

// Snapshot is the aggregated, payload-free view of a reporting window that is
// handed to the model. It never carries raw event payloads.
type Snapshot struct {
	SummaryWindow      string              `json:"summary_window"`
	WindowStart        string              `json:"window_start"`
	WindowEnd          string              `json:"window_end"`
	MaxSeverity        types.Severity      `json:"max_severity"`
	OpenAnomaliesCount int                 `json:"open_anomalies_count"`
	TopEventTypes      []types.TypeCount   `json:"top_event_types"`
	RulesTriggered     []types.SignalCount `json:"rules_triggered"`
	SystemMetrics      SystemMetrics       `json:"system_metrics"`
}

// SystemMetrics are the event volume figures of the window.
type SystemMetrics struct {
	TotalEvents             int      `json:"total_events"`
	InvalidEventRatePercent *float64 `json:"invalid_event_rate_percent"`
}
