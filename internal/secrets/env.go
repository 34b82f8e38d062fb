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
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority is the highest priority so the environment can
	// override any stored credential.
	EnvBackendPriority = 100

	envConnectionPrefix = "PIECEFLOW_CONNECTION_"
)

// EnvBackend reads credentials from PIECEFLOW_CONNECTION_<NAME> variables.
// It is read-only and always available.
type EnvBackend struct{}

// NewEnvBackend creates an environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a credential from the environment.
func (e *EnvBackend) Get(ctx context.Context, name string) (string, error) {
	if value := os.Getenv(e.envKey(name)); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: environment variable not set", ErrSecretNotFound)
}

// Set returns ErrReadOnlyBackend.
func (e *EnvBackend) Set(ctx context.Context, name, value string) error {
	return ErrReadOnlyBackend
}

// Delete returns ErrReadOnlyBackend.
func (e *EnvBackend) Delete(ctx context.Context, name string) error {
	return ErrReadOnlyBackend
}

// List returns connection names found in the environment.
func (e *EnvBackend) List(ctx context.Context) ([]string, error) {
	var names []string
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envConnectionPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 && parts[1] != "" {
			name := strings.TrimPrefix(parts[0], envConnectionPrefix)
			names = append(names, strings.ToLower(name))
		}
	}
	return names, nil
}

// Available returns true; the environment is always readable.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority.
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// ReadOnly returns true.
func (e *EnvBackend) ReadOnly() bool {
	return true
}

func (e *EnvBackend) envKey(name string) string {
	return EnvKey(name)
}

// EnvKey converts a connection name to its environment variable.
// Example: "notion-work" -> "PIECEFLOW_CONNECTION_NOTION_WORK"
func EnvKey(name string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return envConnectionPrefix + normalized
}
