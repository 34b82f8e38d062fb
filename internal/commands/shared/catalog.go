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

package shared

import (
	"log/slog"

	"github.com/pieceflow/pieceflow/internal/config"
	"github.com/pieceflow/pieceflow/internal/log"
	"github.com/pieceflow/pieceflow/internal/manifest"
	"github.com/pieceflow/pieceflow/internal/pieces/notion"
	"github.com/pieceflow/pieceflow/internal/secrets"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

// LoadConfig loads the effective configuration, honoring --config.
func LoadConfig() (*config.Config, error) {
	return config.Load(ConfigPath())
}

// NewLogger builds the CLI logger from config and the global flags.
func NewLogger(cfg *config.Config) *slog.Logger {
	logCfg := log.FromEnv()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	if cfg.Log.AddSource {
		logCfg.AddSource = true
	}
	if Verbose() {
		logCfg.Level = "debug"
	}
	if Quiet() {
		logCfg.Level = "error"
	}
	return log.New(logCfg)
}

// BuildRegistry assembles the piece catalog: compiled-in pieces plus
// any manifest pieces found under the configured directories.
func BuildRegistry(cfg *config.Config, logger *slog.Logger) (*piece.Registry, error) {
	registry := piece.NewRegistry()

	if err := registry.Register(notion.New()); err != nil {
		return nil, err
	}

	if len(cfg.Pieces.ManifestDirs) > 0 {
		loader, err := manifest.NewLoader(nil, logger)
		if err != nil {
			return nil, err
		}
		pieces, err := loader.LoadDirs(cfg.Pieces.ManifestDirs)
		if err != nil {
			return nil, err
		}
		for _, p := range pieces {
			if err := registry.Register(p); err != nil {
				return nil, err
			}
		}
	}

	return registry, nil
}

// NewSecretsResolver builds the default credential resolver chain.
func NewSecretsResolver() (*secrets.Resolver, error) {
	return secrets.DefaultResolver()
}
