// Package cli implements the restc command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lgc202/restkit/httpx"
	"github.com/lgc202/restkit/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envPrefix  string
	baseURL    string
	bearer     string
	cookie     string
	headers    []string
	timeout    time.Duration
	retry      int
	output     string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the restc command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "restc",
		Short: "restc - command-line client for JSON/REST backends",
		Long: `restc sends declarative requests to a JSON/REST backend with the same
auth, timeout, retry and error handling the httpx package applies in code.

Settings come from --config (YAML/JSON/TOML), RESTC_* environment variables
and flags, flags winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to a client config file")
	pf.StringVar(&g.envPrefix, "env-prefix", "RESTC", "Environment variable prefix for config overrides")
	pf.StringVar(&g.baseURL, "base-url", "", "Base URL for relative paths")
	pf.StringVar(&g.bearer, "bearer", "", "Bearer token")
	pf.StringVar(&g.cookie, "cookie", "", "Cookie header to forward")
	pf.StringArrayVarP(&g.headers, "header", "H", nil, "Extra header 'Key: Value' (repeatable)")
	pf.DurationVar(&g.timeout, "timeout", httpx.DefaultTimeout, "Call timeout including retries, 0 disables (a config file's value wins unless set)")
	pf.IntVar(&g.retry, "retry", -1, "Extra attempts on retryable failures (-1 keeps the configured value)")
	pf.StringVarP(&g.output, "output", "o", "json", "Output format (json, raw, table)")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		newRequestCommand(g),
		newGetCommand(g),
		newListCommand(g),
		newShowCommand(g),
		newCreateCommand(g),
		newUpdateCommand(g, http.MethodPut),
		newUpdateCommand(g, http.MethodPatch),
		newDeleteCommand(g),
		newVersionCommand(g),
	)
	for _, sub := range cmd.Commands() {
		if sub.Args != nil {
			sub.Args = usageArgs(sub.Args)
		}
	}
	return cmd
}

// usageArgs reports positional argument mistakes as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, &usageError{fmt.Errorf("invalid --log-level %q", g.logLevel)}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch g.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, &usageError{fmt.Errorf("invalid --log-format %q", g.logFormat)}
	}
}

// client builds the httpx client: config file first, then flags.
func (g *globalFlags) client(cmd *cobra.Command) (*httpx.Client, error) {
	logger, err := g.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	opts := []httpx.Option{
		httpx.WithLogger(logger),
		httpx.WithUserAgent(version.Get().UserAgent("restc")),
	}
	if g.baseURL != "" {
		opts = append(opts, httpx.WithBaseURL(g.baseURL))
	}
	switch {
	case g.bearer != "":
		opts = append(opts, httpx.WithBearer(g.bearer))
	case g.cookie != "":
		opts = append(opts, httpx.WithAuth(httpx.Auth{Kind: httpx.AuthCookie, Cookie: g.cookie}))
	}
	if g.configPath == "" || cmd.Flags().Changed("timeout") {
		opts = append(opts, httpx.WithTimeout(g.timeout))
	}
	if g.retry >= 0 {
		opts = append(opts, httpx.WithRetry(g.retry))
	}
	h, err := parseHeaders(g.headers)
	if err != nil {
		return nil, err
	}
	if len(h) > 0 {
		opts = append(opts, httpx.WithDefaultHeaders(h))
	}

	if g.configPath == "" {
		return httpx.New(opts...)
	}
	p, err := httpx.NewProvider(g.configPath, []httpx.ProviderOption{
		httpx.WithEnvPrefix(g.envPrefix),
		httpx.WithWatch(false),
		httpx.WithProviderLogger(logger),
	}, opts...)
	if err != nil {
		return nil, err
	}
	return p.Client(), nil
}

func parseHeaders(raw []string) (http.Header, error) {
	h := make(http.Header)
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, &usageError{fmt.Errorf("invalid header %q, want 'Key: Value'", kv)}
		}
		h.Add(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return h, nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", describeError(err))
		return ExitCode(err)
	}
	return 0
}

// Main is the entry point used by cmd/restc.
func Main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}
