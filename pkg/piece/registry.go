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

package piece

import (
	"sort"
	"sync"

	"github.com/pieceflow/pieceflow/pkg/errors"
)

// Registry is a thread-safe catalog of registered pieces.
type Registry struct {
	mu     sync.RWMutex
	pieces map[string]*Piece
}

// NewRegistry creates an empty piece registry.
func NewRegistry() *Registry {
	return &Registry{
		pieces: make(map[string]*Piece),
	}
}

// Register adds a piece to the catalog. The piece is validated first;
// duplicate names are rejected.
func (r *Registry) Register(p *Piece) error {
	if p == nil {
		return &errors.ValidationError{Field: "piece", Message: "piece cannot be nil"}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pieces[p.Name]; exists {
		return &errors.ValidationError{
			Field:   p.Name,
			Message: "piece already registered",
		}
	}

	r.pieces[p.Name] = p
	return nil
}

// Get returns the named piece.
func (r *Registry) Get(name string) (*Piece, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pieces[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "piece", ID: name}
	}
	return p, nil
}

// List returns all registered pieces sorted by name.
func (r *Registry) List() []*Piece {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Piece, 0, len(r.pieces))
	for _, p := range r.pieces {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
