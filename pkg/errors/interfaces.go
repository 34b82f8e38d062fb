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

package errors

// UserVisibleError is the contract between error producers and the CLI's
// error rendering: a message written for the person at the terminal plus
// an optional next step. Piece errors that can explain themselves (the
// Notion capability and sharing errors, say) implement it.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the error is worth showing as-is.
	// Wrapped internals that would only confuse return false.
	IsUserVisible() bool

	// UserMessage is the message rendered to the terminal. No Go types,
	// no wrapped error chains.
	UserMessage() string

	// Suggestion is a concrete next step, or empty when there is none.
	Suggestion() string
}

// ErrorClassifier lets callers branch on an error's category without
// matching concrete types, mainly for retry decisions.
type ErrorClassifier interface {
	error

	// ErrorType names the category: "validation", "not_found",
	// "timeout", "service", "config".
	ErrorType() string

	// IsRetryable reports whether repeating the operation could succeed.
	IsRetryable() bool
}
