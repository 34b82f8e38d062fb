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

// Package shared holds state and helpers common to all CLI commands:
// global flags, version info and catalog construction.
package shared

var (
	verbose    bool
	quiet      bool
	jsonOutput bool
	configPath string
)

// RegisterFlagPointers returns pointers for the root command to bind
// the global persistent flags to.
func RegisterFlagPointers() (verboseFlag, quietFlag, jsonFlag *bool, configFlag *string) {
	return &verbose, &quiet, &jsonOutput, &configPath
}

// Verbose reports whether --verbose was passed.
func Verbose() bool { return verbose }

// Quiet reports whether --quiet was passed.
func Quiet() bool { return quiet }

// JSONOutput reports whether --json was passed.
func JSONOutput() bool { return jsonOutput }

// ConfigPath returns the --config override, or empty for the default.
func ConfigPath() string { return configPath }
