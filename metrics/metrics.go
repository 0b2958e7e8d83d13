// Package metrics records Prometheus metrics for httpx clients.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/lgc202/restkit/httpx"
)

// Collector is safe for concurrent use and may be shared by several clients.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

// NewCollector registers the client metrics on reg
// (prometheus.DefaultRegisterer when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restkit_requests_total",
				Help: "HTTP attempts by method, response status and host.",
			},
			[]string{"method", "status", "host"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restkit_request_duration_seconds",
				Help:    "Duration of single HTTP attempts in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "host"},
		),
		requestsInFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restkit_requests_in_flight",
				Help: "HTTP attempts currently waiting for a response.",
			},
			[]string{"method", "host"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restkit_retries_total",
				Help: "Attempts beyond the first one.",
			},
			[]string{"method", "host"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restkit_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
			},
			[]string{"name"},
		),
	}
}

// Options installs the collector on a client.
func (c *Collector) Options() []httpx.Option {
	return []httpx.Option{
		httpx.WithMiddleware(c.Middleware()),
		httpx.WithOnRequest(c.OnRequest),
	}
}

// Middleware measures every attempt at the transport boundary.
func (c *Collector) Middleware() httpx.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return httpx.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			host := req.URL.Host
			inflight := c.requestsInFlight.WithLabelValues(req.Method, host)
			inflight.Inc()
			defer inflight.Dec()

			t0 := time.Now()
			resp, err := next.RoundTrip(req)
			c.requestDuration.WithLabelValues(req.Method, host).Observe(time.Since(t0).Seconds())

			status := "error"
			if err == nil && resp != nil {
				status = strconv.Itoa(resp.StatusCode)
			}
			c.requestsTotal.WithLabelValues(req.Method, status, host).Inc()
			return resp, err
		})
	}
}

// OnRequest counts retries; it never rejects a request.
func (c *Collector) OnRequest(req *http.Request, attempt int) error {
	if attempt > 1 {
		c.retriesTotal.WithLabelValues(req.Method, req.URL.Host).Inc()
	}
	return nil
}

// BreakerStateChange fits httpx.BreakerConfig.OnStateChange.
func (c *Collector) BreakerStateChange(name string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	c.breakerState.WithLabelValues(name).Set(v)
}
