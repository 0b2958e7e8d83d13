package httpx

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

// TransportConfig holds the few dialing knobs the client exposes. Pool sizing
// is left to DefaultTransport.
type TransportConfig struct {
	// ProxyURL routes every request through a fixed proxy. Empty means
	// http.ProxyFromEnvironment.
	ProxyURL string

	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

// NewTransport builds an *http.Transport from DefaultTransport() and cfg.
func NewTransport(cfg TransportConfig) (*http.Transport, error) {
	t := DefaultTransport()
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, &ConfigError{Op: "parse proxy url", Path: cfg.ProxyURL, Err: err}
		}
		t.Proxy = http.ProxyURL(u)
	}
	if cfg.DialTimeout > 0 {
		t.DialContext = (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	if cfg.ResponseHeaderTimeout > 0 {
		t.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	}
	return t, nil
}

// DefaultTransport returns a tuned clone of http.DefaultTransport.
func DefaultTransport() *http.Transport {
	base, _ := http.DefaultTransport.(*http.Transport)
	if base == nil {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	t := base.Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = 5 * time.Second
	t.ResponseHeaderTimeout = 15 * time.Second
	t.ExpectContinueTimeout = 1 * time.Second
	t.IdleConnTimeout = 90 * time.Second
	if t.MaxIdleConnsPerHost == 0 {
		t.MaxIdleConnsPerHost = 16
	}
	t.ForceAttemptHTTP2 = true
	return t
}
