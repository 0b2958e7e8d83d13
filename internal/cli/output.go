package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/gosuri/uitable"

	"github.com/lgc202/restkit/httpx"
)

const (
	exitError   = 1
	exitUsage   = 2
	exitTimeout = 3
	exitHTTP    = 4
)

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue), httpx.IsConfigError(err):
		return exitUsage
	case httpx.IsTimeout(err), httpx.IsCanceled(err):
		return exitTimeout
	}
	if _, ok := httpx.AsError(err); ok {
		return exitHTTP
	}
	return exitError
}

func describeError(err error) string {
	he, ok := httpx.AsError(err)
	if !ok || he.Status == 0 {
		return err.Error()
	}
	return fmt.Sprintf("%s (status %d, code %s)", he.Message, he.Status, he.Code())
}

func writeResponse(w io.Writer, resp *httpx.Response, format string) error {
	switch format {
	case "raw":
		_, err := w.Write(resp.Raw)
		return err
	case "table":
		if t, ok := table(resp.Data); ok {
			_, err := fmt.Fprintln(w, t)
			return err
		}
		return writeResponse(w, resp, "json")
	case "json", "":
		switch resp.Kind {
		case httpx.KindEmpty:
			return nil
		case httpx.KindText:
			_, err := fmt.Fprintln(w, resp.Data)
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Data)
	default:
		return &usageError{fmt.Errorf("unknown output format %q", format)}
	}
}

// maxColumns keeps wide objects readable in a terminal.
const maxColumns = 8

// table renders a list of objects (or a single object) as columns. Columns
// are sorted, "id" first.
func table(data any) (string, bool) {
	var rows []map[string]any
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return "", false
			}
			rows = append(rows, m)
		}
	case map[string]any:
		rows = []map[string]any{v}
	default:
		return "", false
	}
	if len(rows) == 0 {
		return "", false
	}

	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	slices.SortFunc(cols, func(a, b string) int {
		switch {
		case a == "id":
			return -1
		case b == "id":
			return 1
		}
		return strings.Compare(a, b)
	})
	if len(cols) > maxColumns {
		cols = cols[:maxColumns]
	}

	t := uitable.New()
	t.MaxColWidth = 40
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = strings.ToUpper(c)
	}
	t.AddRow(header...)
	for _, r := range rows {
		cells := make([]any, len(cols))
		for i, c := range cols {
			cells[i] = cell(r[c])
		}
		t.AddRow(cells...)
	}
	return t.String(), true
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
