package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by the CircuitBreaker middleware while the breaker
// rejects calls. The client treats it as a transport error.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerConfig tunes CircuitBreaker. Zero values pick gobreaker defaults,
// except ConsecutiveFailures which defaults to 5.
type BreakerConfig struct {
	Name string

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration

	// HalfOpenRequests is how many probes are let through while half-open.
	HalfOpenRequests uint32

	OnStateChange func(name string, from, to gobreaker.State)
}

var errServerFailure = errors.New("server failure")

// CircuitBreaker returns middleware that counts transport errors and 5xx
// responses as failures and short-circuits attempts while the breaker is open.
func CircuitBreaker(cfg BreakerConfig) Middleware {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	})
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			out, err := cb.Execute(func() (interface{}, error) {
				resp, err := next.RoundTrip(req)
				if err != nil {
					return nil, err
				}
				if resp.StatusCode >= 500 {
					return resp, errServerFailure
				}
				return resp, nil
			})
			if errors.Is(err, errServerFailure) {
				return out.(*http.Response), nil
			}
			if err != nil {
				return nil, err
			}
			return out.(*http.Response), nil
		})
	}
}
