// internal/reporting/aggregate.go
package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/user/sentinelops/internal/types"
)

// topEventTypeLimit is how many event types the aggregate keeps.
const topEventTypeLimit = 5

// Input is the aggregated, payload-free view of one reporting window.
type Input struct {
	WindowStart        time.Time
	WindowEnd          time.Time
	Signals            []types.SignalCount
	TotalEvents        int
	FailureRatePercent *float64
	TopEventTypes      []types.TypeCount
	OpenAnomaliesCount int
}

// Collector reads window metrics from the event and anomaly stores.
type Collector struct {
	events    types.EventStore
	anomalies types.AnomalyStore
}

// NewCollector creates a Collector.
func NewCollector(events types.EventStore, anomalies types.AnomalyStore) *Collector {
	return &Collector{events: events, anomalies: anomalies}
}

// Collect aggregates [start, end). It only reads.
func (c *Collector) Collect(ctx context.Context, start, end time.Time) (*Input, error) {
	window := types.EventFilter{From: start, To: end}

	total, err := c.events.Count(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	var rate *float64
	if total > 0 {
		invalid := window
		invalid.Status = types.EventInvalid
		n, err := c.events.Count(ctx, invalid)
		if err != nil {
			return nil, fmt.Errorf("count invalid events: %w", err)
		}
		r := math.Round(float64(n)/float64(total)*100*100) / 100
		rate = &r
	}

	signals, err := c.anomalies.SignalCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate signals: %w", err)
	}
	top, err := c.events.TopTypes(ctx, start, end, topEventTypeLimit)
	if err != nil {
		return nil, fmt.Errorf("top event types: %w", err)
	}
	open, err := c.anomalies.CountOpen(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("count open anomalies: %w", err)
	}

	return &Input{
		WindowStart:        start,
		WindowEnd:          end,
		Signals:            signals,
		TotalEvents:        total,
		FailureRatePercent: rate,
		TopEventTypes:      top,
		OpenAnomaliesCount: open,
	}, nil
}
