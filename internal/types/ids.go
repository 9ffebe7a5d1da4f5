// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type EventID int64
type AnomalyID int64
type DeliveryID int64

// RunID correlates the log lines of one rule evaluation or daily summary run.
type RunID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
