package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRedirect is reported when a server redirects a call made with RedirectError.
var ErrRedirect = errors.New("redirect not allowed")

const maxRedirects = 10

// Client executes Requests against a REST backend. It is immutable after
// construction and safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL *url.URL
	retryOn map[int]bool
	logger  *slog.Logger

	// jarless never touches the cookie jar; jarred is nil without Config.Jar.
	jarless *http.Client
	jarred  *http.Client
}

// New constructs a Client from DefaultConfig() plus the provided options.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Client, error) {
	cfg = cfg.clone()

	var bu *url.URL
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, &ConfigError{Op: "parse base url", Path: base, Err: err}
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, &ConfigError{Op: "parse base url", Path: base, Err: errors.New("base url must be absolute")}
		}
		cfg.BaseURL = base
		bu = u
	}
	if cfg.Retry < 0 {
		return nil, &ConfigError{Op: "configure retry", Err: fmt.Errorf("negative retry count %d", cfg.Retry)}
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Credentials == "" {
		cfg.Credentials = CredentialsSameOrigin
	}
	if cfg.RequestID.Header != "" && cfg.RequestID.New == nil {
		cfg.RequestID.New = DefaultRequestID
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Rand == nil {
		cfg.Rand = defaultJitter
	}
	// Derived clients share the connection pool through the stored transport.
	if cfg.Transport == nil {
		cfg.Transport = DefaultTransport()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rt := chain(cfg.Transport, cfg.Middleware)
	c := &Client{
		cfg:     cfg,
		baseURL: bu,
		retryOn: statusSet(cfg.RetryOn),
		logger:  logger,
		jarless: &http.Client{Transport: rt, CheckRedirect: checkRedirect},
	}
	if cfg.Jar != nil {
		c.jarred = &http.Client{Transport: rt, CheckRedirect: checkRedirect, Jar: cfg.Jar}
	}
	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config { return c.cfg.clone() }

// WithDefaults derives a new Client whose configuration is c's merged with
// opts. c itself is left untouched.
func (c *Client) WithDefaults(opts ...Option) (*Client, error) {
	cfg := c.cfg.clone()
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}
	return NewWithConfig(cfg)
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	switch modesOf(req.Context()).redirect {
	case RedirectError:
		return ErrRedirect
	case RedirectManual:
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// call is the fully resolved, per-call state shared by every attempt.
type call struct {
	method string
	target string
	header http.Header
	body   payload
	modes  requestModes
	close  bool
	http   *http.Client
	policy retryPolicy
}

func (cl *call) success(status int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	return cl.modes.redirect == RedirectManual && status >= 300 && status < 400
}

// abortError marks a failure that ends the call immediately (hook rejection,
// request construction).
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Request executes r. ctx is the caller's cancellation signal; it is combined
// with the effective timeout and governs every attempt and backoff sleep.
//
// On success the parsed body is returned. Failures are *ConfigError (nothing
// was sent), *CancelError (ctx or timeout fired) or *Error (the server
// answered with a non-success status, or every attempt hit a transport error).
func (c *Client) Request(ctx context.Context, r *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		r = &Request{}
	}
	method := normalizeMethod(r.Method)

	target, err := ResolveURL(r.Path, c.cfg.BaseURL, r.Query)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, &ConfigError{Op: "parse url", Path: target, Err: err}
	}

	body, err := buildPayload(r)
	if err != nil {
		return nil, &ConfigError{Op: "encode body", Path: r.Path, Err: err}
	}
	header := headerFor(c.cfg.DefaultHeaders, r.Header)
	body.applyContentType(header)

	timeout := c.cfg.Timeout
	if r.Timeout != 0 {
		timeout = r.Timeout
	}
	ctx, release := compose(ctx, timeout)
	defer release()

	cr, err := resolveAuth(ctx, mergeAuth(c.cfg.Auth, r.Auth))
	if err != nil {
		if ce := cancellation(ctx, err, method, target); ce != nil {
			return nil, ce
		}
		return nil, err
	}
	if c.cfg.StrictAuth && cr.kind == AuthBearer && cr.token == "" {
		return nil, &ConfigError{Op: "resolve auth", Path: r.Path, Err: ErrMissingToken}
	}
	cr.apply(header)

	cache := r.Cache
	if cache == "" && cr.kind != AuthNone {
		cache = CacheNoStore
	}
	if v := cache.header(); v != "" && header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", v)
	}
	if rid := c.cfg.RequestID; rid.Header != "" && header.Get(rid.Header) == "" {
		if id := rid.New(); id != "" {
			header.Set(rid.Header, id)
		}
	}
	if c.cfg.UserAgent != "" && header.Get("User-Agent") == "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	redirect := r.Redirect
	if redirect == "" {
		redirect = RedirectFollow
	}
	creds := r.Credentials
	if creds == "" {
		creds = c.cfg.Credentials
	}

	cl := &call{
		method: method,
		target: target,
		header: header,
		body:   body,
		modes:  requestModes{cache: cache, redirect: redirect},
		close:  r.KeepAlive != nil && !*r.KeepAlive,
		http:   c.httpFor(u, creds),
		policy: c.policyFor(r),
	}
	return c.execute(ctx, cl)
}

func (c *Client) policyFor(r *Request) retryPolicy {
	p := retryPolicy{
		retries: c.cfg.Retry,
		base:    c.cfg.RetryDelay,
		on:      c.retryOn,
		sleep:   c.cfg.Sleep,
		jitter:  c.cfg.Rand,
	}
	if r.Retry != nil {
		p.retries = max(0, *r.Retry)
	}
	if r.RetryDelay > 0 {
		p.base = r.RetryDelay
	}
	if len(r.RetryOn) > 0 {
		p.on = statusSet(r.RetryOn)
	}
	return p
}

// httpFor picks the http.Client according to the credentials mode: the jar
// participates always (include), never (omit) or only for the base URL's
// origin (same-origin).
func (c *Client) httpFor(target *url.URL, mode CredentialsMode) *http.Client {
	if c.jarred == nil {
		return c.jarless
	}
	switch mode {
	case CredentialsInclude:
		return c.jarred
	case CredentialsOmit:
		return c.jarless
	default:
		if c.baseURL != nil && sameOrigin(c.baseURL, target) {
			return c.jarred
		}
		return c.jarless
	}
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		portOf(a) == portOf(b)
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func (c *Client) execute(ctx context.Context, cl *call) (*Response, error) {
	var st retryState
	for ; ; st.attempt++ {
		req, resp, err := c.attempt(ctx, cl, st.attempt+1)
		if err != nil {
			if ce := cancellation(ctx, err, cl.method, cl.target); ce != nil {
				return nil, ce
			}
			var abort *abortError
			if errors.As(err, &abort) {
				return nil, abort.err
			}
			if errors.Is(err, ErrRedirect) {
				return nil, &Error{Message: ErrRedirect.Error(), Method: cl.method, URL: cl.target, Attempts: st.attempt + 1, Cause: err}
			}
			st.lastErr = err
			if st.remaining(cl.policy) {
				if err := c.backoff(ctx, cl, &st, nil); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &Error{
				Message:  "request failed",
				Method:   cl.method,
				URL:      cl.target,
				Attempts: st.attempt + 1,
				Cause:    st.lastErr,
			}
		}

		if cl.success(resp.StatusCode) {
			return c.finish(ctx, cl, req, resp, st.attempt+1)
		}
		if cl.policy.on[resp.StatusCode] && st.remaining(cl.policy) {
			st.lastErr = fmt.Errorf("http %d", resp.StatusCode)
			if err := c.backoff(ctx, cl, &st, resp); err != nil {
				return nil, err
			}
			continue
		}
		return nil, c.fail(ctx, cl, req, resp, st.attempt+1)
	}
}

// attempt performs one round trip. n is 1-based.
func (c *Client) attempt(ctx context.Context, cl *call, n int) (*http.Request, *http.Response, error) {
	req, err := http.NewRequestWithContext(withModes(ctx, cl.modes), cl.method, cl.target, cl.body.reader())
	if err != nil {
		return nil, nil, &abortError{err: &ConfigError{Op: "build request", Path: cl.target, Err: err}}
	}
	req.Header = cl.header.Clone()
	req.Close = cl.close

	if rl := c.cfg.RateLimiter; rl != nil {
		if err := rl.Wait(req.Context()); err != nil {
			if ctx.Err() != nil {
				return req, nil, err
			}
			// The limiter refuses waits that would outlive the deadline.
			return req, nil, &CancelError{Reason: ReasonTimeout, Method: cl.method, URL: cl.target, Cause: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	for _, h := range c.cfg.OnRequest {
		if h == nil {
			continue
		}
		if err := h(req, n); err != nil {
			return req, nil, &abortError{err: err}
		}
	}

	t0 := time.Now()
	resp, err := cl.http.Do(req)
	dur := time.Since(t0)

	for _, h := range c.cfg.OnResponse {
		if h != nil {
			h(req, resp, err, dur, n)
		}
	}
	c.logAttempt(ctx, req, resp, err, dur, n)
	if err != nil {
		return req, nil, err
	}
	return req, resp, nil
}

func (c *Client) backoff(ctx context.Context, cl *call, st *retryState, resp *http.Response) error {
	d := cl.policy.delay(st.attempt, resp)
	drain(resp)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "retrying request",
		slog.String("method", cl.method),
		slog.String("url", sanitizeURLString(cl.target)),
		slog.Int("attempt", st.attempt+1),
		slog.Duration("delay", d),
		slog.String("reason", st.lastErr.Error()),
	)
	if err := cl.policy.sleep(ctx, d); err != nil {
		if ce := cancellation(ctx, err, cl.method, cl.target); ce != nil {
			return ce
		}
		return err
	}
	return nil
}

func (c *Client) finish(ctx context.Context, cl *call, req *http.Request, resp *http.Response, attempts int) (*Response, error) {
	defer resp.Body.Close()
	out, err := parseResponse(resp, c.cfg.MaxBodyBytes)
	if err != nil {
		if ce := cancellation(ctx, err, cl.method, cl.target); ce != nil {
			return nil, ce
		}
		msg := "read response body"
		if errors.Is(err, ErrBodyTooLarge) {
			msg = ErrBodyTooLarge.Error()
		}
		return nil, &Error{
			Message:  msg,
			Method:   cl.method,
			URL:      cl.target,
			Status:   resp.StatusCode,
			Header:   resp.Header,
			Attempts: attempts,
			Cause:    err,
		}
	}
	out.URL = cl.target
	if resp.Request != nil && resp.Request.URL != nil {
		out.URL = resp.Request.URL.String()
	} else if req != nil {
		out.URL = req.URL.String()
	}
	out.Attempts = attempts
	return out, nil
}

func (c *Client) fail(ctx context.Context, cl *call, req *http.Request, resp *http.Response, attempts int) error {
	defer resp.Body.Close()
	parsed, err := parseResponse(resp, c.cfg.MaxBodyBytes)
	if err != nil {
		if ce := cancellation(ctx, err, cl.method, cl.target); ce != nil {
			return ce
		}
		parsed = nil
	}
	if resp.Request != nil {
		req = resp.Request
	}
	e := responseError(req, resp, parsed, c.cfg.RequestID.Header)
	e.Attempts = attempts
	if ra, ok := parseRetryAfter(resp, time.Now()); ok {
		e.RetryAfter = ra
	}
	if err != nil {
		e.Cause = err
	}
	return e
}

func (c *Client) logAttempt(ctx context.Context, req *http.Request, resp *http.Response, err error, dur time.Duration, n int) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", sanitizeURL(req.URL)),
		slog.Int("attempt", n),
		slog.Int64("duration_ms", dur.Milliseconds()),
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	} else {
		attrs = append(attrs, slog.Int("status", resp.StatusCode))
		if resp.StatusCode >= 400 {
			level = slog.LevelWarn
		}
	}
	c.logger.LogAttrs(ctx, level, "http request", attrs...)
}

// Get is shorthand for a GET of path with an optional query.
func (c *Client) Get(ctx context.Context, path string, query any) (*Response, error) {
	return c.Request(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, &Request{Method: http.MethodPost, Path: path, JSON: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, &Request{Method: http.MethodPut, Path: path, JSON: body})
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, &Request{Method: http.MethodPatch, Path: path, JSON: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, &Request{Method: http.MethodDelete, Path: path})
}
