package cli

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lgc202/restkit/httpx"
)

type resourceFlags struct {
	bodyFlags
	idField string
}

func (r *resourceFlags) register(cmd *cobra.Command, withBody bool) {
	r.bodyFlags.register(cmd, withBody)
	cmd.Flags().StringVar(&r.idField, "id-field", "id", "Field holding the item id when ID is omitted")
}

func (r *resourceFlags) resource(g *globalFlags, cmd *cobra.Command, base string) (*httpx.Resource, error) {
	c, err := g.client(cmd)
	if err != nil {
		return nil, err
	}
	return httpx.NewResource(c, base, httpx.WithIDField(r.idField)), nil
}

func newListCommand(g *globalFlags) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:   "list RESOURCE",
		Short: "List a collection (GET RESOURCE)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resource(g, cmd, args[0])
			if err != nil {
				return err
			}
			q, err := f.values()
			if err != nil {
				return err
			}
			resp, err := res.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newShowCommand(g *globalFlags) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:   "show RESOURCE ID",
		Short: "Fetch one item (GET RESOURCE/ID)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resource(g, cmd, args[0])
			if err != nil {
				return err
			}
			resp, err := res.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newCreateCommand(g *globalFlags) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:   "create RESOURCE",
		Short: "Create an item (POST RESOURCE)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resource(g, cmd, args[0])
			if err != nil {
				return err
			}
			body, err := f.body(cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp, err := res.Create(cmd.Context(), body)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	f.register(cmd, true)
	return cmd
}

// newUpdateCommand builds "update" (PUT) or "patch" (PATCH).
func newUpdateCommand(g *globalFlags, method string) *cobra.Command {
	var f resourceFlags
	name, short := "update", "Replace an item (PUT RESOURCE/ID)"
	if method == http.MethodPatch {
		name, short = "patch", "Partially update an item (PATCH RESOURCE/ID)"
	}
	cmd := &cobra.Command{
		Use:   name + " RESOURCE [ID]",
		Short: short,
		Long:  strings.TrimSpace(short + "\n\nWithout ID the id is read from the body's --id-field."),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resource(g, cmd, args[0])
			if err != nil {
				return err
			}
			body, err := f.body(cmd.InOrStdin())
			if err != nil {
				return err
			}
			var id any
			if len(args) == 2 {
				id = args[1]
			}
			var resp *httpx.Response
			if method == http.MethodPatch {
				resp, err = res.Patch(cmd.Context(), id, body)
			} else {
				resp, err = res.Update(cmd.Context(), id, body)
			}
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newDeleteCommand(g *globalFlags) *cobra.Command {
	var f resourceFlags
	cmd := &cobra.Command{
		Use:     "delete RESOURCE ID",
		Aliases: []string{"rm"},
		Short:   "Delete an item (DELETE RESOURCE/ID)",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.resource(g, cmd, args[0])
			if err != nil {
				return err
			}
			resp, err := res.Remove(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), resp, g.output)
		},
	}
	f.register(cmd, false)
	return cmd
}
