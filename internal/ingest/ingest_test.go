package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/stripe"
	"github.com/user/sentinelops/internal/types"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *state.EventStore) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "ingest.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	events := state.NewEventStore(db)
	svc := NewService(events, nil)
	svc.SetClock(func() time.Time { return now })
	return svc, events
}

func window() types.EventFilter {
	return types.EventFilter{From: now.Add(-time.Hour), To: now.Add(time.Hour)}
}

func TestSaveVerifiedDedupes(t *testing.T) {
	svc, events := newService(t)
	ctx := context.Background()
	live := false
	ev := &stripe.Event{
		ID:       "evt_1",
		Type:     "charge.failed",
		Created:  now.Add(-time.Minute),
		Livemode: &live,
		Raw:      json.RawMessage(`{"id":"evt_1","type":"charge.failed"}`),
	}

	out, err := svc.SaveVerified(ctx, ev, "t=1,v1=ab")
	require.NoError(t, err)
	require.Equal(t, Saved, out)

	out, err = svc.SaveVerified(ctx, ev, "t=1,v1=ab")
	require.NoError(t, err)
	require.Equal(t, Deduped, out)

	rows, err := events.Recent(ctx, window(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	require.Equal(t, types.EventVerified, row.Status)
	require.Equal(t, "evt_1", *row.ProviderEventID)
	require.Equal(t, "t=1,v1=ab", *row.Signature)
	require.False(t, *row.Livemode)
	require.True(t, row.CreatedAtProvider.Equal(now.Add(-time.Minute)))
	require.True(t, row.CreatedAt.Equal(now))
}

func TestSaveInvalidWrapsPayload(t *testing.T) {
	svc, events := newService(t)
	ctx := context.Background()

	svc.SaveInvalid(ctx, []byte("not json \xff"), "t=1,v1=00", "no signatures found")
	svc.SaveInvalid(ctx, []byte("again"), "", "no signatures found")

	rows, err := events.Recent(ctx, window(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(rows[1].Raw, &raw))
	require.Equal(t, "no signatures found", raw["error"])
	require.Equal(t, "not json �", raw["payload"])
	require.Equal(t, types.EventInvalid, rows[1].Status)
	require.Nil(t, rows[1].ProviderEventID)
	require.Nil(t, rows[0].Signature)
}

type brokenStore struct {
	types.EventStore
}

func (brokenStore) InsertInvalid(context.Context, *types.Event) error {
	return errors.New("disk I/O error")
}

func (brokenStore) InsertVerified(context.Context, *types.Event) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestSaveInvalidSwallowsErrors(t *testing.T) {
	svc := NewService(brokenStore{}, nil)
	svc.SaveInvalid(context.Background(), []byte("{}"), "sig", "bad")
}

func TestSaveVerifiedPropagatesErrors(t *testing.T) {
	svc := NewService(brokenStore{}, nil)
	_, err := svc.SaveVerified(context.Background(), &stripe.Event{ID: "evt_1", Type: "x"}, "")
	require.Error(t, err)
}
