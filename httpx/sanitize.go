package httpx

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter names (matched case-insensitively, by
// substring) whose values never reach logs or error strings.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
	"signature",
}

const redacted = "[REDACTED]"

func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	safe := *u
	if safe.User != nil {
		safe.User = url.User(safe.User.Username())
	}
	if safe.RawQuery != "" {
		q := safe.Query()
		for param := range q {
			if isSensitiveParam(param) {
				q.Set(param, redacted)
			}
		}
		safe.RawQuery = q.Encode()
	}
	return safe.String()
}

func sanitizeURLString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		// Unparseable; drop the query rather than risk printing a secret.
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return sanitizeURL(u)
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, s := range sensitiveParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
