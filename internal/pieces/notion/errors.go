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

package notion

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pieceflow/pieceflow/pkg/errors"
)

// apiError is the shape of Notion's error payload.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// translateError converts a Notion error response into a ServiceError.
// Access failures get an actionable suggestion: the most common support
// case is an integration that was never shared with the target page or is
// missing a capability, and Notion's raw message does not say how to fix
// it.
func translateError(statusCode int, requestID string, body []byte) error {
	var payload apiError
	_ = json.Unmarshal(body, &payload)

	message := payload.Message
	if message == "" {
		message = http.StatusText(statusCode)
	}

	serr := &errors.ServiceError{
		Service:    "notion",
		Code:       payload.Code,
		StatusCode: statusCode,
		Message:    message,
		RequestID:  requestID,
	}

	lower := strings.ToLower(message)
	switch {
	case statusCode == http.StatusNotFound || payload.Code == "object_not_found":
		serr.Suggestion = "Share the page or database with your integration from the page's Connections menu in Notion."
	case statusCode == http.StatusForbidden || strings.Contains(lower, "capabilities") || strings.Contains(lower, "permissions"):
		serr.Suggestion = "Grant the integration the required content and comment capabilities in Notion's integration settings."
	case statusCode == http.StatusUnauthorized:
		serr.Suggestion = "Check that the connection's token is valid and has not been revoked."
	}

	return serr
}
