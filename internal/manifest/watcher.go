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
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events. Editors commonly
// emit several writes per save.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads manifests when files under the watched directories
// change.
type Watcher struct {
	dirs   []string
	logger *slog.Logger
}

// NewWatcher creates a watcher over the given manifest directories.
func NewWatcher(dirs []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dirs: dirs, logger: logger}
}

// Run watches until the context is canceled, invoking reload on changes
// to YAML files. The initial load is the caller's responsibility.
func (w *Watcher) Run(ctx context.Context, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch manifest directory", "dir", dir, "error", err)
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isManifestFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil

			if err := reload(); err != nil {
				w.logger.Error("manifest reload failed, keeping previous catalog", "error", err)
				continue
			}
			w.logger.Info("manifests reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("manifest watch error", "error", err)
		}
	}
}

func isManifestFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
