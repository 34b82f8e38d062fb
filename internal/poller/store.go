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

package poller

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TriggerState is the persisted record of one enabled trigger: its
// identity, configured inputs and the dedupe cursor carried between
// poll cycles.
type TriggerState struct {
	// TriggerID uniquely identifies the enabled trigger instance.
	TriggerID string

	// Piece and Trigger name the catalog entry being polled.
	Piece   string
	Trigger string

	// Connection is the credential name resolved before each poll.
	Connection string

	// Props are the resolved trigger inputs, stored as JSON.
	Props map[string]interface{}

	// Cursor is the dedupe cursor: "<id>|<epochMillis>" for LastItem
	// triggers, a bare epoch-millis string for TimeBased ones. Empty
	// until the first cycle seeds it.
	Cursor string

	// LastPollTime is when the last successful cycle completed.
	LastPollTime time.Time

	// LastError is the most recent cycle failure, cleared on success.
	LastError string

	// ErrorCount counts consecutive failed cycles.
	ErrorCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists trigger state in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens the state database at path, creating the schema if
// needed. Pass ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	// SQLite locks the whole file on write. A small pool avoids
	// contention. An in-memory database exists per connection, so it
	// must stay on a single one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to state database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trigger_state (
		trigger_id TEXT PRIMARY KEY,
		piece TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		connection TEXT NOT NULL,
		props TEXT,
		cursor TEXT,
		last_poll_time DATETIME,
		last_error TEXT,
		error_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trigger_state_piece ON trigger_state(piece);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// Get retrieves the state for a trigger. Returns nil when no state
// exists yet.
func (s *Store) Get(ctx context.Context, triggerID string) (*TriggerState, error) {
	query := `
	SELECT trigger_id, piece, trigger_name, connection, props, cursor,
	       last_poll_time, last_error, error_count, created_at, updated_at
	FROM trigger_state
	WHERE trigger_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, triggerID)

	var state TriggerState
	var propsJSON, cursor, lastError sql.NullString
	var lastPollTime sql.NullTime

	err := row.Scan(
		&state.TriggerID,
		&state.Piece,
		&state.Trigger,
		&state.Connection,
		&propsJSON,
		&cursor,
		&lastPollTime,
		&lastError,
		&state.ErrorCount,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading trigger state: %w", err)
	}

	if cursor.Valid {
		state.Cursor = cursor.String
	}
	if lastError.Valid {
		state.LastError = lastError.String
	}
	if lastPollTime.Valid {
		state.LastPollTime = lastPollTime.Time
	}
	if propsJSON.Valid && propsJSON.String != "" {
		if err := json.Unmarshal([]byte(propsJSON.String), &state.Props); err != nil {
			return nil, fmt.Errorf("decoding trigger props: %w", err)
		}
	}

	return &state, nil
}

// Save creates or updates the state for a trigger.
func (s *Store) Save(ctx context.Context, state *TriggerState) error {
	propsJSON, err := json.Marshal(state.Props)
	if err != nil {
		return fmt.Errorf("encoding trigger props: %w", err)
	}

	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	state.UpdatedAt = time.Now()

	query := `
	INSERT INTO trigger_state (
		trigger_id, piece, trigger_name, connection, props, cursor,
		last_poll_time, last_error, error_count, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(trigger_id) DO UPDATE SET
		piece = excluded.piece,
		trigger_name = excluded.trigger_name,
		connection = excluded.connection,
		props = excluded.props,
		cursor = excluded.cursor,
		last_poll_time = excluded.last_poll_time,
		last_error = excluded.last_error,
		error_count = excluded.error_count,
		updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		state.TriggerID,
		state.Piece,
		state.Trigger,
		state.Connection,
		string(propsJSON),
		state.Cursor,
		state.LastPollTime,
		state.LastError,
		state.ErrorCount,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving trigger state: %w", err)
	}
	return nil
}

// Delete removes the state for a trigger. Deleting an unknown trigger
// is not an error.
func (s *Store) Delete(ctx context.Context, triggerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trigger_state WHERE trigger_id = ?`, triggerID); err != nil {
		return fmt.Errorf("deleting trigger state: %w", err)
	}
	return nil
}

// List returns every persisted trigger state, ordered by trigger id.
func (s *Store) List(ctx context.Context) ([]*TriggerState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trigger_id FROM trigger_state ORDER BY trigger_id`)
	if err != nil {
		return nil, fmt.Errorf("listing trigger state: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listing trigger state: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing trigger state: %w", err)
	}

	states := make([]*TriggerState, 0, len(ids))
	for _, id := range ids {
		state, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if state != nil {
			states = append(states, state)
		}
	}
	return states, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
