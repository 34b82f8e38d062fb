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

// Package secrets stores piece connection credentials. Credentials are
// resolved through a chain of backends so CI can inject tokens through
// the environment while workstations use the system keychain or an
// encrypted file.
package secrets

import (
	"context"
	"errors"
)

var (
	// ErrSecretNotFound is returned when a connection does not exist in the
	// backend.
	ErrSecretNotFound = errors.New("connection not found")

	// ErrBackendUnavailable is returned when a backend cannot be used in
	// the current environment.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrReadOnlyBackend is returned when attempting to modify a read-only
	// backend.
	ErrReadOnlyBackend = errors.New("backend is read-only")
)

// Backend provides storage for connection credentials. Backends are
// queried in priority order by the Resolver.
type Backend interface {
	// Name returns the backend identifier (e.g., "keychain", "env").
	Name() string

	// Get retrieves a credential by connection name. Returns
	// ErrSecretNotFound if not present.
	Get(ctx context.Context, name string) (string, error)

	// Set stores a credential. Returns ErrReadOnlyBackend if not supported.
	Set(ctx context.Context, name, value string) error

	// Delete removes a credential. Returns ErrSecretNotFound if not
	// present, ErrReadOnlyBackend if not supported.
	Delete(ctx context.Context, name string) error

	// List returns the connection names (not values) this backend holds.
	List(ctx context.Context) ([]string, error)

	// Available reports whether the backend is usable in the current
	// environment.
	Available() bool

	// Priority is the resolution priority (higher = checked first).
	// Standard priorities: env (100), keychain (50), file (25).
	Priority() int
}

// ReadOnlyBackend marks backends that reject writes.
type ReadOnlyBackend interface {
	Backend
	ReadOnly() bool
}

// Metadata describes one stored connection.
type Metadata struct {
	Name     string
	Backend  string
	ReadOnly bool
}
