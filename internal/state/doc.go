// Package state provides SQLite-backed storage for events, anomalies and the
// daily summary delivery ledger.
package state

import "github.com/user/sentinelops/internal/types"

// Compile-time interface compliance checks.
var _ types.EventStore = (*EventStore)(nil)
var _ types.AnomalyStore = (*AnomalyStore)(nil)
var _ types.DeliveryStore = (*DeliveryStore)(nil)
