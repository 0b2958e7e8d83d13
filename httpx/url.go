package httpx

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var schemeRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// isAbsoluteURL reports whether path starts with a scheme.
func isAbsoluteURL(path string) bool {
	return schemeRE.MatchString(path)
}

// ResolveURL turns (path, base, query) into a single request URL.
//
// Absolute paths ignore base. Relative paths are joined to base with exactly one
// slash. A relative path without base has nothing to resolve against and fails
// with a *ConfigError before any I/O happens.
//
// query may be nil, url.Values, a pre-encoded query string, map[string]string,
// map[string][]string or map[string]any; see EncodeQuery for how values are rendered.
func ResolveURL(path, base string, query any) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", &ConfigError{Op: "resolve url", Path: path, Err: ErrEmptyPath}
	}

	var target string
	switch {
	case isAbsoluteURL(p):
		target = p
	case strings.TrimSpace(base) != "":
		target = strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(p, "/")
	default:
		return "", &ConfigError{Op: "resolve url", Path: path, Err: ErrRelativeWithoutBase}
	}

	qs, err := EncodeQuery(query)
	if err != nil {
		return "", &ConfigError{Op: "encode query", Path: path, Err: err}
	}
	return appendQuery(target, qs), nil
}

// appendQuery merges an encoded query onto target, keeping any fragment last.
func appendQuery(target, qs string) string {
	if qs == "" {
		return target
	}
	frag := ""
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target, frag = target[:i], target[i:]
	}
	switch {
	case !strings.Contains(target, "?"):
		target += "?" + qs
	case strings.HasSuffix(target, "?"), strings.HasSuffix(target, "&"):
		target += qs
	default:
		target += "&" + qs
	}
	return target + frag
}

// EncodeQuery renders query parameters. Maps are encoded with sorted keys so the
// same input always yields the same bytes. Nil values are dropped, slices repeat
// the key, time.Time renders as ISO-8601 UTC, and other non-primitive values are
// JSON encoded. url.Values and strings are taken verbatim.
func EncodeQuery(query any) (string, error) {
	switch q := query.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimPrefix(q, "?"), nil
	case url.Values:
		return q.Encode(), nil
	case map[string][]string:
		return url.Values(q).Encode(), nil
	case map[string]string:
		keys := sortedKeys(q)
		var b strings.Builder
		for _, k := range keys {
			writePair(&b, k, q[k])
		}
		return b.String(), nil
	case map[string]any:
		keys := sortedKeys(q)
		var b strings.Builder
		for _, k := range keys {
			vals, err := queryValues(q[k])
			if err != nil {
				return "", fmt.Errorf("query %q: %w", k, err)
			}
			for _, v := range vals {
				writePair(&b, k, v)
			}
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported query type %T", query)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writePair(b *strings.Builder, k, v string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(url.QueryEscape(k))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(v))
}

// queryValues expands one map value into its serialized entries.
func queryValues(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		return []string{string(x)}, nil
	case []string:
		return slices.Clone(x), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			vals, err := queryValues(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	}
	s, ok, err := queryScalar(rv.Interface())
	if err != nil || !ok {
		return nil, err
	}
	return []string{s}, nil
}

func queryScalar(v any) (string, bool, error) {
	switch x := v.(type) {
	case time.Time:
		return formatISOTime(x), true, nil
	case json.Number:
		return x.String(), true, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true, nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true, nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true, nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// formatISOTime renders t as ISO-8601 UTC with millisecond precision.
func formatISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
