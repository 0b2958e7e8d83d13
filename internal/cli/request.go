package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lgc202/restkit/httpx"
)

type bodyFlags struct {
	json  string
	query []string
}

func (b *bodyFlags) register(cmd *cobra.Command, withBody bool) {
	cmd.Flags().StringArrayVarP(&b.query, "query", "q", nil, "Query parameter 'key=value' (repeatable)")
	if withBody {
		cmd.Flags().StringVarP(&b.json, "json", "d", "", "JSON body, '@file' to read a file or '-' for stdin")
	}
}

func (b *bodyFlags) values() (url.Values, error) {
	if len(b.query) == 0 {
		return nil, nil
	}
	q := make(url.Values)
	for _, kv := range b.query {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, &usageError{fmt.Errorf("invalid query %q, want key=value", kv)}
		}
		q.Add(k, v)
	}
	return q, nil
}

// body decodes --json so it is re-encoded (and validated) by the client.
func (b *bodyFlags) body(stdin io.Reader) (any, error) {
	if b.json == "" {
		return nil, nil
	}
	var raw []byte
	switch {
	case b.json == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	case strings.HasPrefix(b.json, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(b.json, "@"))
		if err != nil {
			return nil, &usageError{err}
		}
		raw = data
	default:
		raw = []byte(b.json)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &usageError{fmt.Errorf("invalid JSON body: %w", err)}
	}
	return v, nil
}

func newRequestCommand(g *globalFlags) *cobra.Command {
	var b bodyFlags
	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an arbitrary request",
		Example: `  restc request GET /users -q page=2
  restc request POST /users -d '{"name":"ada"}' --bearer $TOKEN`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			q, err := b.values()
			if err != nil {
				return err
			}
			body, err := b.body(cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := c.Request(cmd.Context(), &httpx.Request{
				Method: args[0],
				Path:   args[1],
				Query:  q,
				JSON:   body,
			})
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	b.register(cmd, true)
	return cmd
}

func newGetCommand(g *globalFlags) *cobra.Command {
	var b bodyFlags
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Send a GET request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			q, err := b.values()
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	b.register(cmd, false)
	return cmd
}
