package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lgc202/restkit/config"
)

// FileConfig is the file/env representation of a client configuration,
// decoded by viper (mapstructure tags) and checked with validator tags.
type FileConfig struct {
	BaseURL      string            `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	Headers      map[string]string `mapstructure:"headers" json:"headers"`
	Timeout      time.Duration     `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
	Retry        int               `mapstructure:"retry" json:"retry" validate:"gte=0,lte=10"`
	RetryDelay   time.Duration     `mapstructure:"retry_delay" json:"retry_delay" validate:"gte=0"`
	RetryOn      []int             `mapstructure:"retry_on" json:"retry_on" validate:"dive,gte=100,lte=599"`
	Credentials  string            `mapstructure:"credentials" json:"credentials" validate:"omitempty,oneof=omit same-origin include"`
	UserAgent    string            `mapstructure:"user_agent" json:"user_agent"`
	RequestID    string            `mapstructure:"request_id_header" json:"request_id_header"`
	MaxBodyBytes int64             `mapstructure:"max_body_bytes" json:"max_body_bytes" validate:"gte=0"`
	StrictAuth   bool              `mapstructure:"strict_auth" json:"strict_auth"`

	Auth      FileAuth      `mapstructure:"auth" json:"auth"`
	RateLimit FileRateLimit `mapstructure:"rate_limit" json:"rate_limit"`
	Breaker   FileBreaker   `mapstructure:"breaker" json:"breaker"`
	Transport FileTransport `mapstructure:"transport" json:"transport"`
}

type FileAuth struct {
	Kind string `mapstructure:"kind" json:"kind" validate:"omitempty,oneof=none bearer cookie"`

	Token string `mapstructure:"token" json:"token"`

	// TokenEnv names an environment variable holding the bearer token; it is
	// read on every call so rotated tokens are picked up.
	TokenEnv string `mapstructure:"token_env" json:"token_env"`
	Cookie   string `mapstructure:"cookie" json:"cookie"`
}

type FileRateLimit struct {
	RPS   float64 `mapstructure:"rps" json:"rps" validate:"gte=0"`
	Burst int     `mapstructure:"burst" json:"burst" validate:"gte=0"`
}

type FileBreaker struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	Failures    uint32        `mapstructure:"failures" json:"failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" json:"open_timeout" validate:"gte=0"`
}

type FileTransport struct {
	Proxy                 string        `mapstructure:"proxy" json:"proxy" validate:"omitempty,url"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" validate:"gte=0"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout" json:"response_header_timeout" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (f FileConfig) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// FileDefaults are the viper defaults matching DefaultConfig.
func FileDefaults() map[string]any {
	return map[string]any{
		"timeout":           "0s",
		"retry_delay":       DefaultRetryDelay.String(),
		"credentials":       string(CredentialsSameOrigin),
		"request_id_header": DefaultRequestIDConfig().Header,
		"max_body_bytes":    DefaultMaxBodyBytes,
	}
}

// Options converts f into client options, applied on top of DefaultConfig.
func (f FileConfig) Options() ([]Option, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithBaseURL(f.BaseURL),
		WithTimeout(f.Timeout),
		WithRetry(f.Retry),
		WithStrictAuth(f.StrictAuth),
	}
	if f.RetryDelay > 0 {
		opts = append(opts, WithRetryDelay(f.RetryDelay))
	}
	if len(f.RetryOn) > 0 {
		opts = append(opts, WithRetryOn(f.RetryOn...))
	}
	if f.Credentials != "" {
		opts = append(opts, WithCredentials(CredentialsMode(f.Credentials)))
	}
	if f.UserAgent != "" {
		opts = append(opts, WithUserAgent(f.UserAgent))
	}
	if f.RequestID != "" {
		opts = append(opts, WithRequestID(RequestIDConfig{Header: f.RequestID}))
	}
	if f.MaxBodyBytes > 0 {
		opts = append(opts, WithMaxBodyBytes(f.MaxBodyBytes))
	}
	if len(f.Headers) > 0 {
		h := make(http.Header, len(f.Headers))
		for k, v := range f.Headers {
			h.Set(k, v)
		}
		opts = append(opts, WithDefaultHeaders(h))
	}

	switch AuthKind(f.Auth.Kind) {
	case AuthBearer:
		a := Auth{Kind: AuthBearer, Token: f.Auth.Token}
		if env := f.Auth.TokenEnv; env != "" && a.Token == "" {
			a.TokenProvider = func(context.Context) (string, error) { return os.Getenv(env), nil }
		}
		opts = append(opts, WithAuth(a))
	case AuthCookie:
		opts = append(opts, WithAuth(Auth{Kind: AuthCookie, Cookie: f.Auth.Cookie}))
	}

	if f.RateLimit.RPS > 0 {
		opts = append(opts, WithRateLimiter(NewTokenBucket(f.RateLimit.RPS, f.RateLimit.Burst)))
	}
	if f.Breaker.Enabled {
		opts = append(opts, WithMiddleware(CircuitBreaker(BreakerConfig{
			Name:                f.BaseURL,
			ConsecutiveFailures: f.Breaker.Failures,
			OpenTimeout:         f.Breaker.OpenTimeout,
		})))
	}
	if t := f.Transport; t != (FileTransport{}) {
		rt, err := NewTransport(TransportConfig{
			ProxyURL:              t.Proxy,
			DialTimeout:           t.DialTimeout,
			ResponseHeaderTimeout: t.ResponseHeaderTimeout,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTransport(rt))
	}
	return opts, nil
}

// NewFromFile builds a Client from f; extra options are applied last.
func NewFromFile(f FileConfig, extra ...Option) (*Client, error) {
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...)
}

// Provider keeps a Client in sync with a configuration file. Every successful
// reload swaps in a freshly built Client; calls already running keep the one
// they started with.
type Provider struct {
	cfg    *config.Config[FileConfig]
	extra  []Option
	logger *slog.Logger
	client atomic.Pointer[Client]
}

type ProviderOption func(*providerOptions)

type providerOptions struct {
	envPrefix string
	watch     bool
	logger    *slog.Logger
}

// WithEnvPrefix lets environment variables (PREFIX_BASE_URL, ...) override the file.
func WithEnvPrefix(prefix string) ProviderOption {
	return func(o *providerOptions) { o.envPrefix = prefix }
}

// WithWatch toggles hot reload. It is on by default.
func WithWatch(watch bool) ProviderOption {
	return func(o *providerOptions) { o.watch = watch }
}

func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(o *providerOptions) { o.logger = l }
}

// NewProvider loads path and builds the first Client. extra options (hooks,
// logger, middleware...) are re-applied on every rebuild.
func NewProvider(path string, popts []ProviderOption, extra ...Option) (*Provider, error) {
	po := providerOptions{watch: true}
	for _, o := range popts {
		if o != nil {
			o(&po)
		}
	}
	if po.logger == nil {
		po.logger = slog.New(slog.DiscardHandler)
	}

	p := &Provider{extra: extra, logger: po.logger}
	copts := []config.Option[FileConfig]{
		config.WithDefaults[FileConfig](FileDefaults()),
		config.WithValidate(FileConfig.Validate),
		config.WithErrorHandler[FileConfig](func(err error) {
			p.logger.Warn("config reload failed", slog.String("path", path), slog.String("error", err.Error()))
		}),
	}
	if po.envPrefix != "" {
		copts = append(copts, config.WithEnv[FileConfig](po.envPrefix))
	}
	if !po.watch {
		copts = append(copts, config.WithoutWatch[FileConfig]())
	}

	cfg, err := config.Load(path, copts...)
	if err != nil {
		return nil, err
	}
	p.cfg = cfg

	c, err := NewFromFile(cfg.Get(), extra...)
	if err != nil {
		return nil, err
	}
	p.client.Store(c)

	cfg.OnChange(func(_, next FileConfig) { p.rebuild(next) })
	return p, nil
}

// Client returns the current Client.
func (p *Provider) Client() *Client { return p.client.Load() }

// FileConfig returns the configuration the current Client was built from.
func (p *Provider) FileConfig() FileConfig { return p.cfg.Get() }

// Reload re-reads the file immediately instead of waiting for a file event.
func (p *Provider) Reload() { p.cfg.Reload() }

func (p *Provider) rebuild(next FileConfig) {
	c, err := NewFromFile(next, p.extra...)
	if err != nil {
		p.logger.Warn("client rebuild failed", slog.String("path", p.cfg.Path()), slog.String("error", err.Error()))
		return
	}
	p.client.Store(c)
	p.logger.Info("client reloaded", slog.String("path", p.cfg.Path()), slog.String("base_url", next.BaseURL))
}
