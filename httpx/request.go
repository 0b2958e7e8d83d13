package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Request describes one call. The zero value is a GET of Path.
type Request struct {
	Method string
	Path   string

	// Header overrides the client's default headers (keys are case-insensitive).
	Header http.Header

	// Query accepts the same values as ResolveURL.
	Query any

	// JSON is marshaled as the body. It takes precedence over Body.
	JSON any

	// Body is the raw body: []byte, string, io.Reader, url.Values
	// (form-urlencoded) or *Form (multipart).
	Body any

	// Auth is merged field by field over the client's default Auth.
	Auth *Auth

	// Timeout overrides Config.Timeout when non-zero; negative disables it.
	Timeout time.Duration

	// Retry overrides Config.Retry when non-nil.
	Retry *int

	// RetryDelay overrides Config.RetryDelay when non-zero.
	RetryDelay time.Duration

	// RetryOn overrides Config.RetryOn when non-empty.
	RetryOn []int

	Cache       CacheMode
	Credentials CredentialsMode
	Redirect    RedirectMode

	// KeepAlive=false asks the transport to close the connection after the call.
	KeepAlive *bool
}

// Ptr returns a pointer to v; handy for Request.Retry and Request.KeepAlive.
func Ptr[T any](v T) *T { return &v }

// CacheMode is the caching policy requested for a call. Apart from the
// no-store default for authenticated calls, the client only translates it into
// request headers; it keeps no cache of its own.
type CacheMode string

const (
	CacheDefault      CacheMode = "default"
	CacheNoStore      CacheMode = "no-store"
	CacheReload       CacheMode = "reload"
	CacheNoCache      CacheMode = "no-cache"
	CacheForceCache   CacheMode = "force-cache"
	CacheOnlyIfCached CacheMode = "only-if-cached"
)

func (m CacheMode) header() string {
	switch m {
	case CacheNoStore:
		return "no-store"
	case CacheReload, CacheNoCache:
		return "no-cache"
	case CacheForceCache:
		return "max-stale"
	case CacheOnlyIfCached:
		return "only-if-cached"
	default:
		return ""
	}
}

// CredentialsMode decides whether the cookie jar takes part in a call.
type CredentialsMode string

const (
	CredentialsOmit       CredentialsMode = "omit"
	CredentialsSameOrigin CredentialsMode = "same-origin"
	CredentialsInclude    CredentialsMode = "include"
)

type RedirectMode string

const (
	RedirectFollow RedirectMode = "follow"
	RedirectError  RedirectMode = "error"
	RedirectManual RedirectMode = "manual"
)

type modesKey struct{}

type requestModes struct {
	cache    CacheMode
	redirect RedirectMode
}

func withModes(ctx context.Context, m requestModes) context.Context {
	return context.WithValue(ctx, modesKey{}, m)
}

func modesOf(ctx context.Context) requestModes {
	m, _ := ctx.Value(modesKey{}).(requestModes)
	return m
}

// CacheModeOf reports the effective cache mode of an outgoing request. It is
// meant for transports, middleware and hooks.
func CacheModeOf(req *http.Request) CacheMode {
	if req == nil {
		return ""
	}
	m := modesOf(req.Context()).cache
	if m == "" {
		return CacheDefault
	}
	return m
}

// Form is a multipart/form-data body. The client generates the boundary and
// the Content-Type header; any caller-supplied Content-Type is dropped.
type Form struct {
	Fields url.Values
	Files  []FormFile
}

type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, k := range sortedKeys(f.Fields) {
		for _, v := range f.Fields[k] {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	for _, ff := range f.Files {
		var (
			w   io.Writer
			err error
		)
		if ff.ContentType == "" {
			w, err = mw.CreateFormFile(ff.Field, ff.Filename)
		} else {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ff.Field, ff.Filename))
			h.Set("Content-Type", ff.ContentType)
			w, err = mw.CreatePart(h)
		}
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(ff.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// payload is an encoded, replayable request body.
type payload struct {
	data        []byte
	contentType string

	// force replaces a caller Content-Type (multipart needs its own boundary).
	force bool
}

func buildPayload(r *Request) (payload, error) {
	if r.JSON != nil {
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return payload{}, err
		}
		return payload{data: b, contentType: "application/json"}, nil
	}
	switch b := r.Body.(type) {
	case nil:
		return payload{}, nil
	case []byte:
		return payload{data: b}, nil
	case string:
		return payload{data: []byte(b)}, nil
	case url.Values:
		return payload{data: []byte(b.Encode()), contentType: "application/x-www-form-urlencoded;charset=UTF-8"}, nil
	case *Form:
		data, ct, err := b.encode()
		if err != nil {
			return payload{}, err
		}
		return payload{data: data, contentType: ct, force: true}, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return payload{}, err
		}
		return payload{data: data}, nil
	default:
		return payload{}, fmt.Errorf("unsupported body type %T", r.Body)
	}
}

func (p payload) applyContentType(h http.Header) {
	if p.contentType == "" {
		return
	}
	if p.force || h.Get("Content-Type") == "" {
		h.Set("Content-Type", p.contentType)
	}
}

func (p payload) reader() io.Reader {
	if p.data == nil {
		return nil
	}
	return bytes.NewReader(p.data)
}

// headerFor overlays per-call headers onto the defaults. Keys are canonicalized
// so "content-type" and "Content-Type" are the same header.
func headerFor(defaults, override http.Header) http.Header {
	h := make(http.Header, len(defaults)+len(override))
	for k, vv := range defaults {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	for k, vv := range override {
		h.Del(k)
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	return h
}

func normalizeMethod(m string) string {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return http.MethodGet
	}
	return m
}
