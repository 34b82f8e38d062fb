package poller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pieceflow/pieceflow/internal/config"
	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

type staticCreds string

func (c staticCreds) Get(ctx context.Context, name string) (string, error) {
	return string(c), nil
}

func pollTrigger(strategy polling.Strategy, fetch func(req piece.PollRequest) ([]polling.Item, error)) *piece.Trigger {
	return &piece.Trigger{
		Name: "events",
		Type: piece.TriggerPolling,
		Polling: &piece.PollingDescriptor{
			Strategy: strategy,
			Items: func(ctx context.Context, req piece.PollRequest) ([]polling.Item, error) {
				return fetch(req)
			},
		},
	}
}

func newTestService(t *testing.T, trig *piece.Trigger, handler EventHandler) (*Service, *Store) {
	t.Helper()

	registry := piece.NewRegistry()
	require.NoError(t, registry.Register(&piece.Piece{
		Name:     "fake",
		Version:  "0.1.0",
		Auth:     piece.AuthSecret,
		Triggers: []*piece.Trigger{trig},
	}))

	store := testStore(t)
	svc := NewService(
		config.PollerConfig{Interval: time.Hour, MaxPages: 10},
		registry, store, staticCreds("token"), handler, nil,
	)
	t.Cleanup(svc.Stop)
	return svc, store
}

func pollItem(id string, ts time.Time) polling.Item {
	return polling.Item{ID: id, Timestamp: ts, Data: map[string]interface{}{"id": id}}
}

func registration() Registration {
	return Registration{
		TriggerID:  "flow1/step1",
		Piece:      "fake",
		Trigger:    "events",
		Connection: "conn",
		Props:      map[string]interface{}{"database_id": "db1"},
	}
}

func TestEnableSeedsWithoutEmitting(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	existing := []polling.Item{pollItem("a", base), pollItem("b", base.Add(time.Minute))}

	var emitted []polling.Item
	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			return existing, nil
		}),
		func(ctx context.Context, state *TriggerState, item polling.Item) error {
			emitted = append(emitted, item)
			return nil
		})

	require.NoError(t, svc.EnableTrigger(context.Background(), registration()))

	assert.Empty(t, emitted)

	state, err := store.Get(context.Background(), "flow1/step1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, pollItem("b", base.Add(time.Minute)).Key(), state.Cursor)
	assert.Zero(t, state.ErrorCount)
}

func TestPollEmitsAfterSeed(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	batch := []polling.Item{pollItem("a", base)}

	var emitted []polling.Item
	var lastCursor string
	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			lastCursor = req.LastCursor
			return batch, nil
		}),
		func(ctx context.Context, state *TriggerState, item polling.Item) error {
			emitted = append(emitted, item)
			return nil
		})

	ctx := context.Background()
	require.NoError(t, svc.EnableTrigger(ctx, registration()))

	// The remote now has one newer row; a filtered fetch returns only it.
	batch = []polling.Item{pollItem("b", base.Add(time.Minute))}
	require.NoError(t, svc.Poll(ctx, "flow1/step1"))

	require.Len(t, emitted, 1)
	assert.Equal(t, "b", emitted[0].ID)
	assert.Equal(t, pollItem("a", base).Key(), lastCursor)

	state, err := store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Equal(t, pollItem("b", base.Add(time.Minute)).Key(), state.Cursor)
}

func TestFailedFetchKeepsCursor(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	var failing bool
	batch := []polling.Item{pollItem("a", base)}

	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			if failing {
				return nil, fmt.Errorf("remote unavailable")
			}
			return batch, nil
		}),
		nil)

	ctx := context.Background()
	require.NoError(t, svc.EnableTrigger(ctx, registration()))
	seeded := pollItem("a", base).Key()

	failing = true
	require.Error(t, svc.Poll(ctx, "flow1/step1"))

	state, err := store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Equal(t, seeded, state.Cursor)
	assert.Equal(t, 1, state.ErrorCount)
	assert.Contains(t, state.LastError, "remote unavailable")

	// A successful cycle clears the failure streak.
	failing = false
	batch = []polling.Item{pollItem("b", base.Add(time.Minute))}
	require.NoError(t, svc.Poll(ctx, "flow1/step1"))

	state, err = store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Zero(t, state.ErrorCount)
	assert.Empty(t, state.LastError)
}

func TestHandlerErrorKeepsCursor(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	batch := []polling.Item{pollItem("a", base)}

	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			return batch, nil
		}),
		func(ctx context.Context, state *TriggerState, item polling.Item) error {
			return fmt.Errorf("downstream full")
		})

	ctx := context.Background()
	require.NoError(t, svc.EnableTrigger(ctx, registration()))
	seeded := pollItem("a", base).Key()

	batch = []polling.Item{pollItem("b", base.Add(time.Minute))}
	require.Error(t, svc.Poll(ctx, "flow1/step1"))

	state, err := store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Equal(t, seeded, state.Cursor)
	assert.Equal(t, 1, state.ErrorCount)
}

func TestTimeBasedWatermark(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	batch := []polling.Item{pollItem("a", base)}

	var emitted []polling.Item
	svc, store := newTestService(t,
		pollTrigger(polling.StrategyTimeBased, func(req piece.PollRequest) ([]polling.Item, error) {
			return batch, nil
		}),
		func(ctx context.Context, state *TriggerState, item polling.Item) error {
			emitted = append(emitted, item)
			return nil
		})

	ctx := context.Background()
	require.NoError(t, svc.EnableTrigger(ctx, registration()))

	// Seed cycle establishes the watermark without emitting.
	assert.Empty(t, emitted)
	state, err := store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(base.UnixMilli()), state.Cursor)

	// An unfiltered refetch includes the old row; only the newer one
	// passes the watermark.
	batch = []polling.Item{pollItem("a", base), pollItem("b", base.Add(time.Minute))}
	require.NoError(t, svc.Poll(ctx, "flow1/step1"))

	require.Len(t, emitted, 1)
	assert.Equal(t, "b", emitted[0].ID)

	state, err = store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(base.Add(time.Minute).UnixMilli()), state.Cursor)
}

func TestTestTriggerSamplesWithoutState(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	var sawTest bool

	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			sawTest = req.Test
			return []polling.Item{pollItem("a", base)}, nil
		}),
		nil)

	items, err := svc.TestTrigger(context.Background(), "fake", "events", "conn", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, sawTest)

	states, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestDisableRemovesState(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc, store := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			return []polling.Item{pollItem("a", base)}, nil
		}),
		nil)

	ctx := context.Background()
	require.NoError(t, svc.EnableTrigger(ctx, registration()))
	require.NoError(t, svc.DisableTrigger(ctx, "flow1/step1"))

	state, err := store.Get(ctx, "flow1/step1")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestEnableUnknownTrigger(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t,
		pollTrigger(polling.StrategyLastItem, func(req piece.PollRequest) ([]polling.Item, error) {
			return []polling.Item{pollItem("a", base)}, nil
		}),
		nil)

	reg := registration()
	reg.Trigger = "nonexistent"
	err := svc.EnableTrigger(context.Background(), reg)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
