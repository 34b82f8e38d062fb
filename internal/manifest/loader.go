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

package manifest

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/pieceflow/pieceflow/internal/jq"
	"github.com/pieceflow/pieceflow/pkg/httpclient"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// Loader parses manifest files and builds runnable pieces from them.
type Loader struct {
	client   *http.Client
	executor *jq.Executor
	logger   *slog.Logger
}

// NewLoader creates a loader. A nil client gets the default HTTP stack.
func NewLoader(client *http.Client, logger *slog.Logger) (*Loader, error) {
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.DefaultConfig())
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		client:   client,
		executor: jq.NewExecutor(0, 0),
		logger:   logger,
	}, nil
}

// LoadDirs loads every manifest found under the given directories.
// Files matching **/*.yaml and **/*.yml are considered. A broken
// manifest fails the whole load; partial catalogs hide errors until a
// flow runs.
func (l *Loader) LoadDirs(dirs []string) ([]*piece.Piece, error) {
	var paths []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			l.logger.Warn("manifest directory missing", "dir", dir)
			continue
		}

		for _, pattern := range []string{"**/*.yaml", "**/*.yml"} {
			matches, err := doublestar.Glob(os.DirFS(dir), pattern)
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", dir, err)
			}
			for _, match := range matches {
				paths = append(paths, dir+"/"+match)
			}
		}
	}
	sort.Strings(paths)

	pieces := make([]*piece.Piece, 0, len(paths))
	for _, path := range paths {
		p, err := l.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading manifest %s: %w", path, err)
		}
		pieces = append(pieces, p)
		l.logger.Debug("loaded manifest piece",
			"piece", p.Name,
			"path", path,
			"actions", len(p.Actions),
			"triggers", len(p.Triggers))
	}
	return pieces, nil
}

// LoadFile parses, validates and builds one manifest file.
func (l *Loader) LoadFile(path string) (*piece.Piece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return l.Build(&m)
}

// Build converts a validated manifest into a runnable piece.
func (l *Loader) Build(m *Manifest) (*piece.Piece, error) {
	p := &piece.Piece{
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Description: m.Description,
		Version:     m.Version,
		Auth:        piece.AuthKind(m.Auth),
	}
	if p.DisplayName == "" {
		p.DisplayName = m.Name
	}
	if p.Auth == "" {
		p.Auth = piece.AuthSecret
	}

	actionNames := sortedKeys(m.Actions)
	for _, name := range actionNames {
		action, err := l.buildAction(m, name, m.Actions[name])
		if err != nil {
			return nil, err
		}
		p.Actions = append(p.Actions, action)
	}

	triggerNames := sortedKeys(m.Triggers)
	for _, name := range triggerNames {
		trigger, err := l.buildTrigger(m, name, m.Triggers[name])
		if err != nil {
			return nil, err
		}
		p.Triggers = append(p.Triggers, trigger)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// buildProps converts property definitions to a property map, wiring
// option requests into dynamic fetchers.
func (l *Loader) buildProps(m *Manifest, defs []PropDef) (*piece.PropertyMap, error) {
	props, err := piece.NewPropertyMap()
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		prop := piece.Property{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Kind:        piece.Kind(def.Kind),
			Required:    def.Required,
			Default:     def.Default,
			Refreshers:  def.Refreshers,
		}
		if prop.DisplayName == "" {
			prop.DisplayName = def.Name
		}
		for _, opt := range def.Options {
			prop.Options = append(prop.Options, piece.Option{Label: opt.Label, Value: opt.Value})
		}
		if def.OptionsRequest != nil {
			prop.FetchOptions = l.optionsFetcher(m, def)
		}

		if err := props.Add(prop); err != nil {
			return nil, err
		}
	}
	return props, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
