// internal/state/event_test.go
package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/sentinelops/internal/types"
)

func verifiedEvent(id, eventType string, at time.Time) *types.Event {
	return &types.Event{
		ProviderEventID: types.StringPtr(id),
		EventType:       types.StringPtr(eventType),
		Raw:             json.RawMessage(`{"id":"` + id + `"}`),
		CreatedAt:       at,
	}
}

func TestEventStore_InsertVerifiedDedupes(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	at := mustTime(t, "2026-03-01T10:01:00Z")

	deduped, err := store.InsertVerified(ctx, verifiedEvent("evt_1", "charge.failed", at))
	require.NoError(t, err)
	require.False(t, deduped)

	deduped, err = store.InsertVerified(ctx, verifiedEvent("evt_1", "charge.failed", at))
	require.NoError(t, err)
	require.True(t, deduped)

	n, err := store.Count(ctx, types.EventFilter{From: at.Add(-time.Hour), To: at.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEventStore_InvalidEventsAlwaysInserted(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	at := mustTime(t, "2026-03-01T10:01:00Z")

	for i := 0; i < 3; i++ {
		ev := &types.Event{Raw: json.RawMessage(`{"error":"bad signature"}`), CreatedAt: at}
		require.NoError(t, store.InsertInvalid(ctx, ev))
		require.NotZero(t, ev.ID)
	}

	n, err := store.Count(ctx, types.EventFilter{
		Status: types.EventInvalid,
		From:   at.Add(-time.Minute),
		To:     at.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestEventStore_CountWindowIsHalfOpen(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	start := mustTime(t, "2026-03-01T10:00:00Z")
	end := start.Add(30 * time.Minute)

	_, err := store.InsertVerified(ctx, verifiedEvent("evt_start", "charge.failed", start))
	require.NoError(t, err)
	_, err = store.InsertVerified(ctx, verifiedEvent("evt_end", "charge.failed", end))
	require.NoError(t, err)
	_, err = store.InsertVerified(ctx, verifiedEvent("evt_other", "charge.succeeded", start.Add(time.Minute)))
	require.NoError(t, err)

	n, err := store.Count(ctx, types.EventFilter{
		Status: types.EventVerified,
		Types:  []string{"charge.failed", "payment_intent.payment_failed"},
		From:   start,
		To:     end,
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEventStore_RecentNewestFirst(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	base := mustTime(t, "2026-03-01T10:00:00Z")

	for i := 0; i < 7; i++ {
		ev := &types.Event{Raw: json.RawMessage(`{}`), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.InsertInvalid(ctx, ev))
	}

	events, err := store.Recent(ctx, types.EventFilter{
		Status: types.EventInvalid,
		From:   base,
		To:     base.Add(time.Hour),
	}, 5)
	require.NoError(t, err)
	require.Len(t, events, 5)
	require.True(t, events[0].CreatedAt.Equal(base.Add(6*time.Minute)))
	require.Equal(t, types.EventInvalid, events[0].Status)
	require.Nil(t, events[0].ProviderEventID)
}

func TestEventStore_TopTypesSkipsNull(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	at := mustTime(t, "2026-03-01T10:00:00Z")

	ids := 0
	add := func(eventType string, n int) {
		for i := 0; i < n; i++ {
			ids++
			_, err := store.InsertVerified(ctx, verifiedEvent("evt_"+string(rune('a'+ids)), eventType, at))
			require.NoError(t, err)
		}
	}
	add("charge.succeeded", 3)
	add("charge.failed", 2)
	add("charge.refunded", 2)
	require.NoError(t, store.InsertInvalid(ctx, &types.Event{CreatedAt: at}))
	require.NoError(t, store.InsertInvalid(ctx, &types.Event{CreatedAt: at}))
	require.NoError(t, store.InsertInvalid(ctx, &types.Event{CreatedAt: at}))
	require.NoError(t, store.InsertInvalid(ctx, &types.Event{CreatedAt: at}))

	top, err := store.TopTypes(ctx, at, at.Add(time.Minute), 5)
	require.NoError(t, err)
	require.Equal(t, []types.TypeCount{
		{EventType: "charge.succeeded", Count: 3},
		{EventType: "charge.failed", Count: 2},
		{EventType: "charge.refunded", Count: 2},
	}, top)
}

func TestEventStore_RoundTripFields(t *testing.T) {
	store := NewEventStore(openTestDB(t))
	ctx := context.Background()
	at := mustTime(t, "2026-03-01T10:00:00Z")
	provider := mustTime(t, "2026-03-01T09:59:58Z")

	ev := verifiedEvent("evt_rt", "invoice.payment_failed", at)
	ev.Livemode = types.BoolPtr(true)
	ev.Signature = types.StringPtr("t=1,v1=abc")
	ev.CreatedAtProvider = &provider
	_, err := store.InsertVerified(ctx, ev)
	require.NoError(t, err)

	got, err := store.Recent(ctx, types.EventFilter{From: at, To: at.Add(time.Second)}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "stripe", got[0].Source)
	require.Equal(t, "evt_rt", *got[0].ProviderEventID)
	require.True(t, *got[0].Livemode)
	require.True(t, got[0].CreatedAtProvider.Equal(provider))
	require.JSONEq(t, `{"id":"evt_rt"}`, string(got[0].Raw))
}
