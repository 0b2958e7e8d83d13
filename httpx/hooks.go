package httpx

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RequestHook runs before every attempt (attempt starts at 1). It may mutate
// req; returning an error aborts the call without retrying.
type RequestHook func(req *http.Request, attempt int) error

// ResponseHook runs after every attempt. Exactly one of resp and err is
// meaningful; resp.Body must be left unread.
type ResponseHook func(req *http.Request, resp *http.Response, err error, dur time.Duration, attempt int)

// RateLimiter throttles attempts. Wait blocks until the attempt may proceed or
// ctx is done.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// NewTokenBucket returns a RateLimiter allowing rps attempts per second with
// the given burst.
func NewTokenBucket(rps float64, burst int) RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Middleware wraps the transport. Middleware sees every attempt, including
// retries, as a separate RoundTrip.
type Middleware func(next http.RoundTripper) http.RoundTripper

func chain(rt http.RoundTripper, mws []Middleware) http.RoundTripper {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		rt = mws[i](rt)
	}
	return rt
}

// RoundTripperFunc adapts a function to an http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
