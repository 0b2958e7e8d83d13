package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrEmptyPath           = errors.New("empty url/path")
	ErrRelativeWithoutBase = errors.New("relative path requires BaseURL")
	ErrMissingToken        = errors.New("bearer auth without a token")
)

// FallbackCode is what Error.Code returns when the server sent no problem code.
const FallbackCode = "HTTP_ERROR"

// Problem is the structured failure body a server may return.
// Every field is optional.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title,omitempty"`
	Status int    `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Errors any    `json:"errors,omitempty"`
	Stack  string `json:"stack,omitempty"`
}

// problemFrom reads a Problem out of a decoded JSON object, skipping fields
// whose type does not match instead of failing.
func problemFrom(v any) *Problem {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	p := &Problem{
		Type:   str("type"),
		Title:  str("title"),
		Code:   str("code"),
		Detail: str("detail"),
		Errors: m["errors"],
		Stack:  str("stack"),
	}
	if f, ok := m["status"].(float64); ok {
		p.Status = int(f)
	}
	return p
}

// Error is the terminal failure of a call that reached the server (or
// exhausted its retries on transport errors).
type Error struct {
	// Message is chosen from problem detail, then title, then the raw body
	// text, then a generic status description.
	Message string
	Method  string
	URL     string

	// Status is the HTTP status code. It is 0 when no response was received.
	Status int

	// Problem is set only when the body was a JSON object.
	Problem *Problem

	// RawBody is the response body as received. It is nil when the body
	// exceeded Config.MaxBodyBytes.
	RawBody []byte
	Header  http.Header

	RequestID  string
	RetryAfter time.Duration
	Attempts   int

	// Cause is the underlying transport error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if strings.TrimSpace(e.Method) != "" {
		b.WriteString(strings.ToUpper(strings.TrimSpace(e.Method)))
		b.WriteString(" ")
	}
	if strings.TrimSpace(e.URL) != "" {
		b.WriteString(sanitizeURLString(e.URL))
		b.WriteString(": ")
	}
	if e.Status != 0 {
		b.WriteString(fmt.Sprintf("http %d: ", e.Status))
	}
	b.WriteString(e.Message)
	if e.RequestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(e.RequestID)
	}
	if e.Cause != nil && e.Status == 0 && !strings.Contains(e.Message, e.Cause.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Code is the machine-readable problem code, or FallbackCode.
func (e *Error) Code() string {
	if e != nil && e.Problem != nil && strings.TrimSpace(e.Problem.Code) != "" {
		return e.Problem.Code
	}
	return FallbackCode
}

// errorMessage picks the caller-facing message for a failed response.
func errorMessage(status int, p *Problem, raw []byte) string {
	if p != nil {
		if s := strings.TrimSpace(p.Detail); s != "" {
			return s
		}
		if s := strings.TrimSpace(p.Title); s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// ConfigError reports a request that could not be built. It is raised before
// any I/O and never retried.
type ConfigError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("httpx: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("httpx: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AsError extracts *Error.
func AsError(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

func IsStatus(err error, code int) bool {
	he, ok := AsError(err)
	return ok && he.Status == code
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
