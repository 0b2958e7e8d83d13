package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

// Config configures a Client. Use DefaultConfig() as a baseline.
//
// A Config is copied into the Client at construction time; later changes to the
// value (or to the maps/slices it references) do not affect the Client.
type Config struct {
	// BaseURL is required for relative paths. Absolute paths ignore it.
	BaseURL string

	// DefaultHeaders are copied into every request (per-call headers win).
	DefaultHeaders http.Header

	// Auth is the default credential strategy. Per-call Auth is merged field by field.
	Auth Auth

	// Credentials controls whether the cookie jar participates in a request.
	Credentials CredentialsMode

	// Timeout bounds the whole call including retries and backoff sleeps.
	// Zero or negative disables it.
	Timeout time.Duration

	// Retry is the number of extra attempts after the first one. Zero disables retries.
	Retry int

	// RetryDelay is the base backoff delay. DefaultRetryDelay is used when zero.
	RetryDelay time.Duration

	// RetryOn lists the response status codes that are retried.
	// DefaultRetryOn is used when empty.
	RetryOn []int

	// OnRequest hooks run before every attempt and may abort the call by returning an error.
	OnRequest []RequestHook

	// OnResponse hooks run after every attempt. They must not consume resp.Body.
	OnResponse []ResponseHook

	// Transport performs the actual I/O. DefaultTransport() is used when nil.
	Transport http.RoundTripper

	// Middleware wraps Transport, outermost first.
	Middleware []Middleware

	// RateLimiter throttles attempts client-wide.
	RateLimiter RateLimiter

	// Jar receives and supplies cookies according to Credentials.
	Jar http.CookieJar

	// UserAgent is set when the request does not already carry one.
	UserAgent string

	// RequestID configures correlation id propagation.
	RequestID RequestIDConfig

	// MaxBodyBytes caps the size of a response body; larger bodies fail the
	// call with ErrBodyTooLarge. DefaultMaxBodyBytes when zero.
	MaxBodyBytes int64

	// StrictAuth turns a bearer call without a token into a configuration error
	// instead of sending it unauthenticated.
	StrictAuth bool

	// Logger receives per-attempt debug records. Discarded when nil.
	Logger *slog.Logger

	// Sleep and Rand drive the retry loop; tests replace them to avoid real timers.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

const (
	// DefaultTimeout is not applied by New; front ends such as the CLI use it
	// as their own default.
	DefaultTimeout      = 30 * time.Second
	DefaultRetryDelay   = 250 * time.Millisecond
	DefaultMaxBodyBytes = 8 << 20 // 8MiB
)

// DefaultRetryOn is the retryable status set used when Config.RetryOn is empty.
var DefaultRetryOn = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultConfig returns a conservative baseline: no retries, no call timeout
// and same-origin cookie forwarding.
func DefaultConfig() Config {
	return Config{
		DefaultHeaders: make(http.Header),
		Auth:           Auth{Kind: AuthNone},
		Credentials:    CredentialsSameOrigin,
		RetryDelay:     DefaultRetryDelay,
		RetryOn:        slices.Clone(DefaultRetryOn),
		MaxBodyBytes:   DefaultMaxBodyBytes,
		RequestID:      DefaultRequestIDConfig(),
	}
}

// clone returns a deep enough copy that mutating the result never touches c.
func (c Config) clone() Config {
	out := c
	out.DefaultHeaders = c.DefaultHeaders.Clone()
	if out.DefaultHeaders == nil {
		out.DefaultHeaders = make(http.Header)
	}
	out.RetryOn = slices.Clone(c.RetryOn)
	out.OnRequest = slices.Clone(c.OnRequest)
	out.OnResponse = slices.Clone(c.OnResponse)
	out.Middleware = slices.Clone(c.Middleware)
	return out
}
