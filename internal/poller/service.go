// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package poller schedules polling triggers, persists their dedupe
// cursors and emits new items to a configured handler.
//
// A trigger's cursor is only advanced after a fully successful cycle:
// every page fetched, every new item handed to the handler, the state
// row written. A failure anywhere leaves the cursor untouched so the
// failed window is retried intact on the next cycle. Delivery is
// therefore at-least-once.
package poller

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/pieceflow/pieceflow/internal/config"
	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
	"github.com/pieceflow/pieceflow/pkg/piece/polling"
)

// MinInterval is the lowest allowed polling interval.
const MinInterval = time.Second

// errorAlertThreshold is the consecutive-failure count at which a
// trigger's problems are escalated from warning to error logs.
const errorAlertThreshold = 5

// CredentialSource resolves a connection name to a credential.
// *secrets.Resolver satisfies this.
type CredentialSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// EventHandler receives each new item detected by a poll cycle. An
// error aborts the cycle before the cursor advances, so the same items
// are redelivered on the next poll.
type EventHandler func(ctx context.Context, state *TriggerState, item polling.Item) error

// Registration describes a trigger instance to enable.
type Registration struct {
	// TriggerID uniquely identifies this instance across restarts.
	TriggerID string

	// Piece and Trigger name the catalog entry to poll.
	Piece   string
	Trigger string

	// Connection is the credential name resolved before each cycle.
	Connection string

	// Props are the resolved trigger inputs.
	Props map[string]interface{}
}

// Service runs the poll loops for enabled triggers.
type Service struct {
	registry *piece.Registry
	store    *Store
	creds    CredentialSource
	handler  EventHandler
	logger   *slog.Logger

	interval time.Duration
	maxPages int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[string]*pollTimer
	stopped bool
}

type pollTimer struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewService creates a poller. A nil handler drops items after logging
// them, which is useful for dry runs.
func NewService(cfg config.PollerConfig, registry *piece.Registry, store *Store, creds CredentialSource, handler EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval < MinInterval {
		interval = MinInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		registry: registry,
		store:    store,
		creds:    creds,
		handler:  handler,
		logger:   logger,
		interval: interval,
		maxPages: cfg.MaxPages,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[string]*pollTimer),
	}
}

// EnableTrigger registers a trigger instance and runs its first cycle
// immediately. The first cycle of a fresh trigger seeds the cursor
// without emitting, so enabling never replays history. A failing first
// cycle still enables the trigger; the failure is recorded and the
// schedule takes over.
func (s *Service) EnableTrigger(ctx context.Context, reg Registration) error {
	if reg.TriggerID == "" {
		return &errors.ValidationError{Field: "trigger_id", Message: "trigger id cannot be empty"}
	}
	if _, _, err := s.lookup(reg.Piece, reg.Trigger); err != nil {
		return err
	}

	state, err := s.store.Get(ctx, reg.TriggerID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &TriggerState{TriggerID: reg.TriggerID}
	}

	// Re-enabling keeps the existing cursor so no window is replayed.
	state.Piece = reg.Piece
	state.Trigger = reg.Trigger
	state.Connection = reg.Connection
	state.Props = reg.Props

	if err := s.store.Save(ctx, state); err != nil {
		return err
	}

	if err := s.Poll(ctx, reg.TriggerID); err != nil {
		s.logger.Warn("initial poll cycle failed",
			"trigger_id", reg.TriggerID, "piece", reg.Piece, "error", err)
	}

	s.schedule(reg.TriggerID)
	return nil
}

// DisableTrigger stops the trigger's schedule and deletes its state.
// Re-enabling later starts from a fresh seed cycle.
func (s *Service) DisableTrigger(ctx context.Context, triggerID string) error {
	s.unschedule(triggerID)
	return s.store.Delete(ctx, triggerID)
}

// TestTrigger fetches a small recent sample without touching any
// persisted cursor. Used by the builder's "test trigger" panel.
func (s *Service) TestTrigger(ctx context.Context, pieceName, triggerName, connection string, props map[string]interface{}) ([]polling.Item, error) {
	_, trig, err := s.lookup(pieceName, triggerName)
	if err != nil {
		return nil, err
	}

	auth, err := s.creds.Get(ctx, connection)
	if err != nil {
		return nil, err
	}

	return trig.Polling.Items(ctx, piece.PollRequest{
		Auth:  auth,
		Props: props,
		Test:  true,
	})
}

// Poll runs one cycle for an enabled trigger.
func (s *Service) Poll(ctx context.Context, triggerID string) error {
	state, err := s.store.Get(ctx, triggerID)
	if err != nil {
		return err
	}
	if state == nil {
		return &errors.NotFoundError{Resource: "trigger state", ID: triggerID}
	}

	start := time.Now()
	newItems, nextCursor, err := s.cycle(ctx, state)
	recordPoll(state.Piece, state.Trigger, err == nil, time.Since(start).Seconds())

	if err != nil {
		state.ErrorCount++
		state.LastError = err.Error()
		if saveErr := s.store.Save(ctx, state); saveErr != nil {
			s.logger.Error("cannot record poll failure", "trigger_id", triggerID, "error", saveErr)
		}

		log := s.logger.Warn
		if state.ErrorCount >= errorAlertThreshold {
			log = s.logger.Error
		}
		log("poll cycle failed",
			"trigger_id", triggerID,
			"piece", state.Piece,
			"consecutive_errors", state.ErrorCount,
			"error", err)
		return err
	}

	state.Cursor = nextCursor
	state.LastPollTime = time.Now()
	state.LastError = ""
	state.ErrorCount = 0
	if err := s.store.Save(ctx, state); err != nil {
		return err
	}

	recordEvents(state.Piece, state.Trigger, len(newItems))
	s.logger.Debug("poll cycle complete",
		"trigger_id", triggerID,
		"piece", state.Piece,
		"new_items", len(newItems),
		"cursor", nextCursor)
	return nil
}

// cycle fetches, dedupes and emits for one trigger. It returns the new
// items and the cursor to persist; the caller owns persistence.
func (s *Service) cycle(ctx context.Context, state *TriggerState) ([]polling.Item, string, error) {
	_, trig, err := s.lookup(state.Piece, state.Trigger)
	if err != nil {
		return nil, "", err
	}

	auth, err := s.creds.Get(ctx, state.Connection)
	if err != nil {
		return nil, "", fmt.Errorf("resolving connection %q: %w", state.Connection, err)
	}

	items, err := trig.Polling.Items(ctx, piece.PollRequest{
		Auth:       auth,
		Props:      state.Props,
		LastCursor: state.Cursor,
		MaxPages:   s.maxPages,
	})
	if err != nil {
		return nil, "", err
	}

	var newItems []polling.Item
	var nextCursor string

	switch trig.Polling.Strategy {
	case polling.StrategyLastItem:
		res, err := polling.DedupeLastItem(items, state.Cursor, false)
		if err != nil {
			return nil, "", err
		}
		newItems = res.NewItems
		nextCursor = res.NextCursor

	case polling.StrategyTimeBased:
		var prevMillis int64
		if state.Cursor != "" {
			prevMillis, err = strconv.ParseInt(state.Cursor, 10, 64)
			if err != nil {
				return nil, "", fmt.Errorf("malformed watermark cursor %q: %w", state.Cursor, err)
			}
		}
		res := polling.DedupeTimeBased(items, prevMillis)
		newItems = res.NewItems
		if res.NextCursorMillis > 0 {
			nextCursor = strconv.FormatInt(res.NextCursorMillis, 10)
		}

	default:
		return nil, "", fmt.Errorf("unknown dedupe strategy %q", trig.Polling.Strategy)
	}

	for _, item := range newItems {
		if s.handler == nil {
			s.logger.Info("new item", "trigger_id", state.TriggerID, "item_id", item.ID)
			continue
		}
		if err := s.handler(ctx, state, item); err != nil {
			return nil, "", fmt.Errorf("handling item %s: %w", item.ID, err)
		}
	}

	return newItems, nextCursor, nil
}

// Run restores persisted triggers into the schedule and blocks until
// the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	states, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	for _, state := range states {
		s.schedule(state.TriggerID)
	}
	s.logger.Info("poller running", "triggers", len(states), "interval", s.interval)

	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// Stop cancels every schedule. The service cannot be restarted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.cancel()
	for _, pt := range s.timers {
		pt.cancel()
		pt.timer.Stop()
	}
	s.timers = make(map[string]*pollTimer)
	activeTriggers.Set(0)
}

func (s *Service) schedule(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if _, exists := s.timers[triggerID]; exists {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	pt := &pollTimer{
		timer:  time.NewTimer(jitter(s.interval)),
		cancel: cancel,
	}
	s.timers[triggerID] = pt
	activeTriggers.Set(float64(len(s.timers)))

	go s.runTimer(ctx, triggerID, pt)
}

func (s *Service) unschedule(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pt, exists := s.timers[triggerID]; exists {
		pt.cancel()
		pt.timer.Stop()
		delete(s.timers, triggerID)
	}
	activeTriggers.Set(float64(len(s.timers)))
}

func (s *Service) runTimer(ctx context.Context, triggerID string, pt *pollTimer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-pt.timer.C:
			// Poll errors are recorded in state and metrics; the
			// schedule keeps going.
			_ = s.Poll(ctx, triggerID)
			pt.timer.Reset(jitter(s.interval))
		}
	}
}

func (s *Service) lookup(pieceName, triggerName string) (*piece.Piece, *piece.Trigger, error) {
	p, err := s.registry.Get(pieceName)
	if err != nil {
		return nil, nil, err
	}
	trig, err := p.Trigger(triggerName)
	if err != nil {
		return nil, nil, err
	}
	return p, trig, nil
}

// jitter spreads timers by up to ±10% so triggers sharing an interval
// do not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.1
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
