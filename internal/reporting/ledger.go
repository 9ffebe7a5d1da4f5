// internal/reporting/ledger.go
package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/types"
)

// Skip reasons.
const (
	SkipAlreadySent = "already_sent"
	SkipInProgress  = "in_progress"
)

// maxResponseLen bounds the stored channel response.
const maxResponseLen = 100

// Ledger drives a delivery row through pending -> sending -> terminal. The
// (kind, summary_date) uniqueness of the store decides which caller sends.
type Ledger struct {
	store      types.DeliveryStore
	staleAfter time.Duration
}

// NewLedger creates a Ledger. A sending row older than staleAfter is
// considered abandoned and may be reclaimed; zero disables reclaiming.
func NewLedger(store types.DeliveryStore, staleAfter time.Duration) *Ledger {
	return &Ledger{store: store, staleAfter: staleAfter}
}

// Attempt identifies the delivery being begun.
type Attempt struct {
	Kind        string
	SummaryDate string
	WindowStart time.Time
	WindowEnd   time.Time
	Force       bool
	Now         time.Time
}

// Begin claims the row for a. It returns the claimed row, or a skip reason
// when another run already sent or is sending. Losing a race is a skip, not
// an error.
func (l *Ledger) Begin(ctx context.Context, a Attempt) (*types.Delivery, string, error) {
	existing, err := l.store.Get(ctx, a.Kind, a.SummaryDate)
	if errors.Is(err, state.ErrNotFound) {
		return l.insert(ctx, a)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load delivery: %w", err)
	}

	if !a.Force {
		switch {
		case existing.Status == types.DeliverySent || existing.Status == types.DeliverySkipped:
			return nil, SkipAlreadySent, nil
		case existing.Status == types.DeliverySending && !l.stale(existing, a.Now):
			return nil, SkipInProgress, nil
		}
	}
	return l.reclaim(ctx, existing, a)
}

func (l *Ledger) insert(ctx context.Context, a Attempt) (*types.Delivery, string, error) {
	d := &types.Delivery{
		Kind:        a.Kind,
		SummaryDate: a.SummaryDate,
		Status:      types.DeliverySending,
		WindowStart: types.TimePtr(a.WindowStart),
		WindowEnd:   types.TimePtr(a.WindowEnd),
		UsedAI:      types.BoolPtr(false),
		CreatedAt:   a.Now,
		UpdatedAt:   a.Now,
	}
	err := l.store.Insert(ctx, d)
	if errors.Is(err, state.ErrDuplicate) {
		winner, gerr := l.store.Get(ctx, a.Kind, a.SummaryDate)
		if gerr == nil && winner.Status == types.DeliverySent {
			return nil, SkipAlreadySent, nil
		}
		return nil, SkipInProgress, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("insert delivery: %w", err)
	}
	return d, "", nil
}

// reclaim resets the row and moves it to sending with a compare-and-swap.
func (l *Ledger) reclaim(ctx context.Context, prev *types.Delivery, a Attempt) (*types.Delivery, string, error) {
	next := *prev
	next.Status = types.DeliverySending
	next.WindowStart = types.TimePtr(a.WindowStart)
	next.WindowEnd = types.TimePtr(a.WindowEnd)
	next.DeliveredAt = nil
	next.UsedAI = types.BoolPtr(false)
	next.AIError = nil
	next.SlackResponse = nil
	next.UpdatedAt = a.Now
	if !next.UpdatedAt.After(prev.UpdatedAt) {
		next.UpdatedAt = prev.UpdatedAt.Add(time.Microsecond)
	}

	won, err := l.store.Claim(ctx, prev, &next)
	if err != nil {
		return nil, "", fmt.Errorf("claim delivery: %w", err)
	}
	if !won {
		return nil, SkipInProgress, nil
	}
	return &next, "", nil
}

func (l *Ledger) stale(d *types.Delivery, now time.Time) bool {
	return l.staleAfter > 0 && now.Sub(d.UpdatedAt) >= l.staleAfter
}

// MarkSent finalizes d as delivered.
func (l *Ledger) MarkSent(ctx context.Context, d *types.Delivery, at time.Time, usedAI bool, aiError, response string) error {
	d.Status = types.DeliverySent
	d.DeliveredAt = types.TimePtr(at)
	d.UsedAI = types.BoolPtr(usedAI)
	d.AIError = optional(aiError)
	d.SlackResponse = types.StringPtr(truncate(response, maxResponseLen))
	d.UpdatedAt = at
	return l.store.Finalize(ctx, d)
}

// MarkFailed finalizes d as failed so a later run can reclaim it.
func (l *Ledger) MarkFailed(ctx context.Context, d *types.Delivery, at time.Time, usedAI bool, aiError string) error {
	d.Status = types.DeliveryFailed
	d.DeliveredAt = nil
	d.UsedAI = types.BoolPtr(usedAI)
	d.AIError = optional(aiError)
	d.UpdatedAt = at
	return l.store.Finalize(ctx, d)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
