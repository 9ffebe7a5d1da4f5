// internal/state/delivery_test.go
package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/sentinelops/internal/types"
)

func TestDeliveryStore_InsertUnique(t *testing.T) {
	store := NewDeliveryStore(openTestDB(t))
	ctx := context.Background()

	d := &types.Delivery{Kind: "daily_ops", SummaryDate: "2026-03-01", Status: types.DeliverySending}
	require.NoError(t, store.Insert(ctx, d))
	require.NotZero(t, d.ID)

	err := store.Insert(ctx, &types.Delivery{Kind: "daily_ops", SummaryDate: "2026-03-01", Status: types.DeliverySending})
	require.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, store.Insert(ctx, &types.Delivery{Kind: "daily_ops", SummaryDate: "2026-03-02"}))
	require.NoError(t, store.Insert(ctx, &types.Delivery{Kind: "weekly_ops", SummaryDate: "2026-03-01"}))
}

func TestDeliveryStore_GetNotFound(t *testing.T) {
	store := NewDeliveryStore(openTestDB(t))
	_, err := store.Get(context.Background(), "daily_ops", "2026-03-01")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryStore_ClaimIsCompareAndSwap(t *testing.T) {
	store := NewDeliveryStore(openTestDB(t))
	ctx := context.Background()
	created := mustTime(t, "2026-03-01T09:00:00Z")

	d := &types.Delivery{Kind: "daily_ops", SummaryDate: "2026-03-01", Status: types.DeliveryFailed, CreatedAt: created}
	require.NoError(t, store.Insert(ctx, d))
	prev, err := store.Get(ctx, "daily_ops", "2026-03-01")
	require.NoError(t, err)

	next := *prev
	next.Status = types.DeliverySending
	next.UpdatedAt = created.Add(time.Hour)

	won, err := store.Claim(ctx, prev, &next)
	require.NoError(t, err)
	require.True(t, won)

	// A second claimer holding the stale snapshot loses.
	other := next
	other.UpdatedAt = created.Add(2 * time.Hour)
	won, err = store.Claim(ctx, prev, &other)
	require.NoError(t, err)
	require.False(t, won)

	got, err := store.Get(ctx, "daily_ops", "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, types.DeliverySending, got.Status)
	require.True(t, got.UpdatedAt.Equal(next.UpdatedAt))
}

func TestDeliveryStore_Finalize(t *testing.T) {
	store := NewDeliveryStore(openTestDB(t))
	ctx := context.Background()
	start := mustTime(t, "2026-02-28T09:00:00Z")
	end := start.Add(24 * time.Hour)

	d := &types.Delivery{Kind: "daily_ops", SummaryDate: "2026-03-01", Status: types.DeliverySending,
		WindowStart: &start, WindowEnd: &end}
	require.NoError(t, store.Insert(ctx, d))

	d.Status = types.DeliverySent
	d.DeliveredAt = &end
	d.UsedAI = types.BoolPtr(false)
	d.AIError = types.StringPtr("ai_not_configured")
	d.SlackResponse = types.StringPtr("ok")
	d.UpdatedAt = end
	require.NoError(t, store.Finalize(ctx, d))

	got, err := store.Get(ctx, "daily_ops", "2026-03-01")
	require.NoError(t, err)
	require.Equal(t, types.DeliverySent, got.Status)
	require.True(t, got.DeliveredAt.Equal(end))
	require.True(t, got.WindowStart.Equal(start))
	require.False(t, *got.UsedAI)
	require.Equal(t, "ai_not_configured", *got.AIError)
	require.Equal(t, "ok", *got.SlackResponse)

	err = store.Finalize(ctx, &types.Delivery{ID: 999, Status: types.DeliveryFailed})
	require.ErrorIs(t, err, ErrNotFound)
}
