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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Resolver queries a chain of backends in priority order.
type Resolver struct {
	backends []Backend
}

// NewResolver creates a resolver over the available backends, sorted by
// priority descending.
func NewResolver(backends ...Backend) *Resolver {
	available := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Available() {
			available = append(available, b)
		}
	}

	sort.Slice(available, func(i, j int) bool {
		return available[i].Priority() > available[j].Priority()
	})

	return &Resolver{backends: available}
}

// DefaultResolver builds the standard chain: env over keychain over
// encrypted file.
func DefaultResolver() (*Resolver, error) {
	file, err := NewFileBackend("", "")
	if err != nil {
		return nil, err
	}
	return NewResolver(NewEnvBackend(), NewKeychainBackend(), file), nil
}

// Get returns the first backend's value for the connection name, or
// ErrSecretNotFound if no backend has it.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if len(r.backends) == 0 {
		return "", fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	var lastErr error
	for _, backend := range r.backends {
		value, err := backend.Get(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("getting connection %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q", ErrSecretNotFound, name)
}

// Set stores a credential in the named backend, or in the highest
// priority writable backend when backendName is empty.
func (r *Resolver) Set(ctx context.Context, name, value, backendName string) error {
	if len(r.backends) == 0 {
		return fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	if backendName != "" {
		for _, backend := range r.backends {
			if backend.Name() == backendName {
				if err := backend.Set(ctx, name, value); err != nil {
					return fmt.Errorf("storing connection in %s: %w", backendName, err)
				}
				return nil
			}
		}
		return fmt.Errorf("backend %q not found or unavailable", backendName)
	}

	for _, backend := range r.backends {
		if ro, ok := backend.(ReadOnlyBackend); ok && ro.ReadOnly() {
			continue
		}
		if err := backend.Set(ctx, name, value); err != nil {
			if errors.Is(err, ErrReadOnlyBackend) {
				continue
			}
			return fmt.Errorf("storing connection in %s: %w", backend.Name(), err)
		}
		return nil
	}
	return fmt.Errorf("no writable backend available")
}

// Delete removes a credential from the named backend, or from every
// writable backend holding it when backendName is empty.
func (r *Resolver) Delete(ctx context.Context, name, backendName string) error {
	if len(r.backends) == 0 {
		return fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	if backendName != "" {
		for _, backend := range r.backends {
			if backend.Name() == backendName {
				if err := backend.Delete(ctx, name); err != nil {
					return fmt.Errorf("deleting connection from %s: %w", backendName, err)
				}
				return nil
			}
		}
		return fmt.Errorf("backend %q not found or unavailable", backendName)
	}

	deleted := false
	for _, backend := range r.backends {
		if ro, ok := backend.(ReadOnlyBackend); ok && ro.ReadOnly() {
			continue
		}
		if err := backend.Delete(ctx, name); err != nil {
			if errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrReadOnlyBackend) {
				continue
			}
			return fmt.Errorf("deleting connection from %s: %w", backend.Name(), err)
		}
		deleted = true
	}

	if !deleted {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}
	return nil
}

// List merges connection names across backends; the highest priority
// backend wins on duplicates.
func (r *Resolver) List(ctx context.Context) ([]Metadata, error) {
	if len(r.backends) == 0 {
		return nil, fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	seen := make(map[string]Metadata)
	for _, backend := range r.backends {
		names, err := backend.List(ctx)
		if err != nil {
			continue
		}

		for _, name := range names {
			if _, exists := seen[name]; exists {
				continue
			}

			readOnly := false
			if ro, ok := backend.(ReadOnlyBackend); ok {
				readOnly = ro.ReadOnly()
			}
			seen[name] = Metadata{Name: name, Backend: backend.Name(), ReadOnly: readOnly}
		}
	}

	result := make([]Metadata, 0, len(seen))
	for _, meta := range seen {
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Backends returns the available backends in priority order.
func (r *Resolver) Backends() []Backend {
	return r.backends
}
