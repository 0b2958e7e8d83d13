package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Resource is a stateless CRUD view over one collection path:
//
//	List   GET    base?query
//	Get    GET    base/id
//	Create POST   base
//	Update PUT    base/id
//	Patch  PATCH  base/id
//	Remove DELETE base/id
//	Raw    any    base/subPath
type Resource struct {
	client   *Client
	base     string
	idField  string
	defaults Request
}

type ResourceOption func(*Resource)

// WithIDField names the field Update and Patch read the id from when they are
// called with an empty id. Defaults to "id".
func WithIDField(name string) ResourceOption {
	return func(r *Resource) {
		if name != "" {
			r.idField = name
		}
	}
}

// WithResourceDefaults sets request fields (headers, auth, timeout, retry...)
// applied to every call of the resource unless the call sets them itself.
// Method, Path, Query, JSON and Body are ignored.
func WithResourceDefaults(d Request) ResourceOption {
	return func(r *Resource) {
		d.Method, d.Path, d.Query, d.JSON, d.Body = "", "", nil, nil, nil
		d.Header = d.Header.Clone()
		r.defaults = d
	}
}

func NewResource(c *Client, base string, opts ...ResourceOption) *Resource {
	r := &Resource{client: c, base: base, idField: "id"}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Path returns base/id with id path-escaped.
func (r *Resource) Path(id string) string {
	return joinPath(r.base, url.PathEscape(id))
}

func (r *Resource) List(ctx context.Context, query any) (*Response, error) {
	return r.do(ctx, Request{Method: http.MethodGet, Path: r.base, Query: query})
}

func (r *Resource) Get(ctx context.Context, id any) (*Response, error) {
	p, err := r.itemPath(id, nil)
	if err != nil {
		return nil, err
	}
	return r.do(ctx, Request{Method: http.MethodGet, Path: p})
}

func (r *Resource) Create(ctx context.Context, data any) (*Response, error) {
	return r.do(ctx, Request{Method: http.MethodPost, Path: r.base, JSON: data})
}

// Update replaces the item. An empty id is read from data's id field.
func (r *Resource) Update(ctx context.Context, id any, data any) (*Response, error) {
	p, err := r.itemPath(id, data)
	if err != nil {
		return nil, err
	}
	return r.do(ctx, Request{Method: http.MethodPut, Path: p, JSON: data})
}

// Patch partially updates the item. An empty id is read from data's id field.
func (r *Resource) Patch(ctx context.Context, id any, data any) (*Response, error) {
	p, err := r.itemPath(id, data)
	if err != nil {
		return nil, err
	}
	return r.do(ctx, Request{Method: http.MethodPatch, Path: p, JSON: data})
}

func (r *Resource) Remove(ctx context.Context, id any) (*Response, error) {
	p, err := r.itemPath(id, nil)
	if err != nil {
		return nil, err
	}
	return r.do(ctx, Request{Method: http.MethodDelete, Path: p})
}

// Raw sends req against base/subPath. subPath is joined verbatim (not escaped).
func (r *Resource) Raw(ctx context.Context, subPath string, req *Request) (*Response, error) {
	var rq Request
	if req != nil {
		rq = *req
	}
	rq.Path = joinPath(r.base, subPath)
	return r.do(ctx, rq)
}

func (r *Resource) do(ctx context.Context, rq Request) (*Response, error) {
	return r.client.Request(ctx, overlay(r.defaults, rq))
}

var errMissingID = errors.New("missing resource id")

func (r *Resource) itemPath(id any, data any) (string, error) {
	s := idString(id)
	if s == "" && data != nil {
		s = idString(lookupField(data, r.idField))
	}
	if s == "" {
		return "", &ConfigError{Op: "resource id", Path: r.base, Err: errMissingID}
	}
	return r.Path(s), nil
}

func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		// JSON numbers decode as float64; print integers without an exponent.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// lookupField reads name from a map or, via its JSON form, from a struct.
func lookupField(data any, name string) any {
	switch m := data.(type) {
	case map[string]any:
		return m[name]
	case map[string]string:
		return m[name]
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m[name]
}

func joinPath(base, sub string) string {
	sub = strings.TrimLeft(sub, "/")
	if sub == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + sub
}

// overlay fills the zero fields of r from def. Headers are merged, r winning.
func overlay(def, r Request) *Request {
	out := r
	if def.Header != nil {
		out.Header = headerFor(def.Header, r.Header)
	}
	if out.Auth == nil {
		out.Auth = def.Auth
	}
	if out.Timeout == 0 {
		out.Timeout = def.Timeout
	}
	if out.Retry == nil {
		out.Retry = def.Retry
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = def.RetryDelay
	}
	if len(out.RetryOn) == 0 {
		out.RetryOn = def.RetryOn
	}
	if out.Cache == "" {
		out.Cache = def.Cache
	}
	if out.Credentials == "" {
		out.Credentials = def.Credentials
	}
	if out.Redirect == "" {
		out.Redirect = def.Redirect
	}
	if out.KeepAlive == nil {
		out.KeepAlive = def.KeepAlive
	}
	return &out
}
