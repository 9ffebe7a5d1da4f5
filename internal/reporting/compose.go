// internal/reporting/compose.go
package reporting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/sentinelops/internal/insight"
	"github.com/user/sentinelops/internal/types"
)

// Overall status lines, most severe first.
const (
	StatusCritical = "System had critical anomalies in the last 24 hours."
	StatusMinor    = "System was mostly stable with minor anomalies."
	StatusOpenOnly = "System was stable, but there are open anomalies to review."
	StatusStable   = "System was stable in the last 24 hours."
)

const maxHighlights = 6

// Report is the deterministic daily report. Snapshot is the only part handed
// to the insight generator.
type Report struct {
	OverallStatus string
	Highlights    []string
	WatchList     []string
	Snapshot      *insight.Snapshot
}

// Compose builds the report for in. It has no side effects.
func Compose(in *Input) *Report {
	signals := sortSignals(in.Signals)

	highlights := []string{
		fmt.Sprintf("Open anomalies: %d", in.OpenAnomaliesCount),
		fmt.Sprintf("Total events: %d", in.TotalEvents),
	}
	if in.FailureRatePercent != nil {
		highlights = append(highlights, fmt.Sprintf("Invalid event rate: %s%%", formatPercent(*in.FailureRatePercent)))
	}
	if len(in.TopEventTypes) > 0 {
		top := in.TopEventTypes
		if len(top) > 2 {
			top = top[:2]
		}
		parts := make([]string, len(top))
		for i, tc := range top {
			parts[i] = fmt.Sprintf("%s(%d)", tc.EventType, tc.Count)
		}
		highlights = append(highlights, "Top event types: "+strings.Join(parts, ", "))
	}
	for i, s := range signals {
		if i == 3 {
			break
		}
		highlights = append(highlights, fmt.Sprintf("%s: %d hits", s.RuleCode, s.HitCount))
	}
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}

	var watch []string
	for i := 3; i < len(signals) && i < 6; i++ {
		watch = append(watch, fmt.Sprintf("%s: monitor trend (hits %d)", signals[i].RuleCode, signals[i].HitCount))
	}

	return &Report{
		OverallStatus: overallStatus(signals, in.OpenAnomaliesCount),
		Highlights:    highlights,
		WatchList:     watch,
		Snapshot: &insight.Snapshot{
			SummaryWindow:      "last_24_hours",
			WindowStart:        in.WindowStart.UTC().Format(time.RFC3339),
			WindowEnd:          in.WindowEnd.UTC().Format(time.RFC3339),
			MaxSeverity:        MaxSeverity(signals),
			OpenAnomaliesCount: in.OpenAnomaliesCount,
			TopEventTypes:      nonNil(in.TopEventTypes),
			RulesTriggered:     nonNil(signals),
			SystemMetrics: insight.SystemMetrics{
				TotalEvents:             in.TotalEvents,
				InvalidEventRatePercent: in.FailureRatePercent,
			},
		},
	}
}

// sortSignals orders by severity rank then hit count, both descending,
// keeping the input order for ties.
func sortSignals(in []types.SignalCount) []types.SignalCount {
	out := make([]types.SignalCount, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].HitCount > out[j].HitCount
	})
	return out
}

// MaxSeverity returns the highest known severity among signals, or low.
func MaxSeverity(signals []types.SignalCount) types.Severity {
	best := types.SeverityLow
	bestRank := 0
	for _, s := range signals {
		if r := s.Severity.Rank(); r > bestRank {
			best, bestRank = s.Severity, r
		}
	}
	return best
}

func overallStatus(signals []types.SignalCount, open int) string {
	hasMedium := false
	for _, s := range signals {
		switch s.Severity {
		case types.SeverityHigh:
			return StatusCritical
		case types.SeverityMedium:
			hasMedium = true
		}
	}
	switch {
	case hasMedium:
		return StatusMinor
	case open > 0:
		return StatusOpenOnly
	default:
		return StatusStable
	}
}

// formatPercent prints the shortest decimal form, always with a fraction
// digit: 20 -> "20.0", 12.5 -> "12.5".
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
