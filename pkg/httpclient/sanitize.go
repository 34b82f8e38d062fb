package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter name fragments whose values never
// reach a log line. Matched case-insensitively, as substrings.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
}

// sanitizeURL returns the URL with sensitive query values redacted, for
// use in log output. Connection tokens often travel as query parameters.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()

	for param := range q {
		if isSensitiveParam(param) {
			q.Set(param, "[REDACTED]")
		}
	}

	safe := *u
	safe.RawQuery = q.Encode()
	return safe.String()
}

// isSensitiveParam reports whether a parameter name contains one of the
// sensitive fragments, so "API_KEY" and "Api_Key" both match "key".
func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
