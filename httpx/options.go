package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"
)

type Option interface{ apply(*Config) }

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

func WithBaseURL(baseURL string) Option {
	return optionFunc(func(c *Config) { c.BaseURL = baseURL })
}

func WithDefaultHeader(key, value string) Option {
	return optionFunc(func(c *Config) {
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(http.Header)
		}
		c.DefaultHeaders.Set(key, value)
	})
}

func WithDefaultHeaders(h http.Header) Option {
	return optionFunc(func(c *Config) {
		if h == nil {
			return
		}
		if c.DefaultHeaders == nil {
			c.DefaultHeaders = make(http.Header)
		}
		for k, vv := range h {
			c.DefaultHeaders.Del(k)
			for _, v := range vv {
				c.DefaultHeaders.Add(k, v)
			}
		}
	})
}

// WithAuth replaces the default credential strategy.
func WithAuth(a Auth) Option {
	return optionFunc(func(c *Config) { c.Auth = a })
}

// WithBearer is shorthand for WithAuth(Auth{Kind: AuthBearer, Token: token}).
func WithBearer(token string) Option {
	return WithAuth(Auth{Kind: AuthBearer, Token: token})
}

// WithTokenProvider installs a bearer strategy that asks p for a token on every call.
func WithTokenProvider(p TokenProvider) Option {
	return WithAuth(Auth{Kind: AuthBearer, TokenProvider: p})
}

func WithCredentials(mode CredentialsMode) Option {
	return optionFunc(func(c *Config) { c.Credentials = mode })
}

func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.Timeout = d })
}

func WithRetry(n int) Option {
	return optionFunc(func(c *Config) { c.Retry = n })
}

func WithRetryDelay(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.RetryDelay = d })
}

func WithRetryOn(codes ...int) Option {
	return optionFunc(func(c *Config) { c.RetryOn = slices.Clone(codes) })
}

func WithOnRequest(hooks ...RequestHook) Option {
	return optionFunc(func(c *Config) { c.OnRequest = append(c.OnRequest, hooks...) })
}

func WithOnResponse(hooks ...ResponseHook) Option {
	return optionFunc(func(c *Config) { c.OnResponse = append(c.OnResponse, hooks...) })
}

func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(c *Config) { c.Transport = rt })
}

// WithMiddleware appends transport middleware (see Middleware).
func WithMiddleware(mws ...Middleware) Option {
	return optionFunc(func(c *Config) { c.Middleware = append(c.Middleware, mws...) })
}

func WithRateLimiter(rl RateLimiter) Option {
	return optionFunc(func(c *Config) { c.RateLimiter = rl })
}

func WithCookieJar(jar http.CookieJar) Option {
	return optionFunc(func(c *Config) { c.Jar = jar })
}

func WithUserAgent(ua string) Option {
	return optionFunc(func(c *Config) { c.UserAgent = ua })
}

func WithRequestID(cfg RequestIDConfig) Option {
	return optionFunc(func(c *Config) { c.RequestID = cfg })
}

func WithMaxBodyBytes(n int64) Option {
	return optionFunc(func(c *Config) { c.MaxBodyBytes = n })
}

func WithStrictAuth(strict bool) Option {
	return optionFunc(func(c *Config) { c.StrictAuth = strict })
}

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}

// WithRetrySleep replaces the backoff sleep; it must return early with an
// error once ctx is done.
func WithRetrySleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return optionFunc(func(c *Config) { c.Sleep = sleep })
}

// WithJitter replaces the backoff jitter source. fn must return values in [0.5, 1).
func WithJitter(fn func() float64) Option {
	return optionFunc(func(c *Config) { c.Rand = fn })
}
