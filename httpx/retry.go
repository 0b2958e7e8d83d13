package httpx

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// maxBackoffExponent caps the multiplier at 2^6 = 64.
	maxBackoffExponent = 6

	// maxRetryAfter bounds how long a server-provided Retry-After can stall a call.
	maxRetryAfter = 30 * time.Second

	// drainLimit bounds how much of a discarded body is read before closing it.
	drainLimit = 1 << 20
)

// BackoffMultiplier is the un-jittered factor applied to the base delay after
// the given attempt index.
func BackoffMultiplier(attempt int) int64 {
	return int64(1) << min(maxBackoffExponent, max(0, attempt))
}

// Backoff computes floor(base * 2^min(6, max(0, attempt)) * jitter).
// jitter is expected in [0.5, 1.0); base defaults to DefaultRetryDelay.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = DefaultRetryDelay
	}
	return time.Duration(math.Floor(float64(base) * float64(BackoffMultiplier(attempt)) * jitter))
}

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewPCG(seed64(), seed64()))
)

func seed64() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:])
	}
	return uint64(time.Now().UnixNano())
}

// defaultJitter draws uniformly from [0.5, 1.0).
func defaultJitter() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return 0.5 + jitterRng.Float64()*0.5
}

// retryPolicy is the effective retry configuration of one call.
type retryPolicy struct {
	retries int
	base    time.Duration
	on      map[int]bool
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() float64
}

func (p retryPolicy) delay(attempt int, resp *http.Response) time.Duration {
	d := Backoff(p.base, attempt, p.jitter())
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if ra, ok := parseRetryAfter(resp, time.Now()); ok && ra > d {
			d = max(d, min(ra, maxRetryAfter))
		}
	}
	return d
}

// retryState is threaded through the attempt loop.
type retryState struct {
	attempt int
	lastErr error
}

func (s *retryState) remaining(p retryPolicy) bool {
	return s.attempt < p.retries
}

func statusSet(codes []int) map[int]bool {
	if len(codes) == 0 {
		codes = DefaultRetryOn
	}
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

// parseRetryAfter reads Retry-After as delay-seconds or an HTTP date.
func parseRetryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
