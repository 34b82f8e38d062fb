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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// FileBackendPriority is the priority for the encrypted file backend.
	FileBackendPriority = 25

	// MasterKeyEnv names the environment variable holding the master key
	// for the encrypted connection file.
	MasterKeyEnv = "PIECEFLOW_MASTER_KEY"

	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLength   = 32

	saltSize = 16
)

// FileBackend stores credentials in a JSON file encrypted with
// AES-256-GCM. The cipher key is derived from the master key with
// Argon2id.
type FileBackend struct {
	path      string
	masterKey []byte
	mu        sync.Mutex
	available bool
}

// envelope is the on-disk structure of the encrypted file.
type envelope struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// NewFileBackend creates an encrypted file backend. An empty path
// defaults to <user config dir>/pieceflow/connections.enc; an empty
// masterKey falls back to the PIECEFLOW_MASTER_KEY environment variable.
// A missing master key yields an unavailable backend, not an error, so
// the resolver chain still works.
func NewFileBackend(path, masterKey string) (*FileBackend, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving config directory: %w", err)
		}
		path = filepath.Join(configDir, "pieceflow", "connections.enc")
	}

	if masterKey == "" {
		masterKey = os.Getenv(MasterKeyEnv)
	}
	if masterKey == "" {
		return &FileBackend{path: path}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating secrets directory: %w", err)
	}

	return &FileBackend{
		path:      path,
		masterKey: []byte(masterKey),
		available: true,
	}, nil
}

// Name returns the backend identifier.
func (f *FileBackend) Name() string {
	return "file"
}

// Get retrieves a credential from the encrypted file.
func (f *FileBackend) Get(ctx context.Context, name string) (string, error) {
	if !f.available {
		return "", fmt.Errorf("%w: master key not available", ErrBackendUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	connections, err := f.load()
	if err != nil {
		return "", err
	}

	value, ok := connections[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// Set stores a credential in the encrypted file.
func (f *FileBackend) Set(ctx context.Context, name, value string) error {
	if !f.available {
		return fmt.Errorf("%w: master key not available", ErrBackendUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	connections, err := f.load()
	if err != nil {
		return err
	}
	connections[name] = value
	return f.save(connections)
}

// Delete removes a credential from the encrypted file.
func (f *FileBackend) Delete(ctx context.Context, name string) error {
	if !f.available {
		return fmt.Errorf("%w: master key not available", ErrBackendUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	connections, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := connections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	delete(connections, name)
	return f.save(connections)
}

// List returns the stored connection names, sorted.
func (f *FileBackend) List(ctx context.Context) ([]string, error) {
	if !f.available {
		return nil, fmt.Errorf("%w: master key not available", ErrBackendUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	connections, err := f.load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(connections))
	for name := range connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Available reports whether a master key was resolved.
func (f *FileBackend) Available() bool {
	return f.available
}

// Priority returns the backend priority.
func (f *FileBackend) Priority() int {
	return FileBackendPriority
}

// load decrypts the connection file. A missing file is an empty store.
func (f *FileBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading connection file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing connection file: %w", err)
	}

	gcm, err := f.cipher(env.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting connection file (wrong master key?): %w", err)
	}

	var connections map[string]string
	if err := json.Unmarshal(plaintext, &connections); err != nil {
		return nil, fmt.Errorf("parsing decrypted connections: %w", err)
	}
	return connections, nil
}

// save encrypts and writes the connection map with a fresh salt and nonce.
func (f *FileBackend) save(connections map[string]string) error {
	plaintext, err := json.Marshal(connections)
	if err != nil {
		return fmt.Errorf("encoding connections: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := f.cipher(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	env := envelope{
		Salt:  salt,
		Nonce: nonce,
		Data:  gcm.Seal(nil, nonce, plaintext, nil),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding connection file: %w", err)
	}
	return os.WriteFile(f.path, data, 0o600)
}

// cipher derives the AES-GCM cipher for the given salt.
func (f *FileBackend) cipher(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(f.masterKey, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
