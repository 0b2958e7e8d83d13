package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

type Kind string

const (
	KindEmpty Kind = "empty"
	KindJSON  Kind = "json"
	KindText  Kind = "text"
)

// Response is a parsed response body.
//
// Data is nil for empty bodies, the decoded value (map[string]any, []any, ...)
// for JSON, and a string for text or JSON that failed to parse.
type Response struct {
	Kind Kind
	Data any

	Raw    []byte
	Status int
	Header http.Header

	// URL is the final request URL; Attempts counts transport attempts made.
	URL      string
	Attempts int
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Raw)) == 0 {
		return errors.New("httpx: empty response body")
	}
	return json.Unmarshal(r.Raw, v)
}

// DecodeStrict is like Decode but rejects unknown fields and trailing data.
func (r *Response) DecodeStrict(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Raw)) == 0 {
		return errors.New("httpx: empty response body")
	}
	dec := json.NewDecoder(bytes.NewReader(r.Raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("unexpected extra JSON value in response body")
	}
	return nil
}

// As decodes the body of a successful call into T. It is meant to wrap a call
// directly: users, err := httpx.As[[]User](res.List(ctx, nil)).
func As[T any](resp *Response, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if resp == nil || resp.Kind == KindEmpty || len(bytes.TrimSpace(resp.Raw)) == 0 {
		return out, nil
	}
	if derr := resp.Decode(&out); derr != nil {
		var zero T
		return zero, fmt.Errorf("httpx: decode %s response: %w", resp.Kind, derr)
	}
	return out, nil
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// ErrBodyTooLarge is the cause of a call whose response body exceeds
// Config.MaxBodyBytes. Such a body is never returned cut short.
var ErrBodyTooLarge = errors.New("response body too large")

// parseResponse reads resp.Body exactly once (never for 204) and classifies it.
// Malformed JSON degrades to text rather than failing. A body longer than
// limit fails with ErrBodyTooLarge.
func parseResponse(resp *http.Response, limit int64) (*Response, error) {
	out := &Response{Kind: KindEmpty, Status: resp.StatusCode, Header: resp.Header}
	if resp.StatusCode == http.StatusNoContent || resp.Body == nil {
		return out, nil
	}

	r := io.Reader(resp.Body)
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	out.Raw = raw

	isJSON := isJSONContentType(resp.Header.Get("Content-Type"))
	if len(bytes.TrimSpace(raw)) == 0 {
		if isJSON {
			out.Kind = KindJSON
		}
		return out, nil
	}
	if isJSON {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out.Kind = KindJSON
			out.Data = v
			return out, nil
		}
	}
	out.Kind = KindText
	out.Data = string(raw)
	return out, nil
}

// responseError builds the terminal *Error for a non-success response.
func responseError(req *http.Request, resp *http.Response, parsed *Response, requestIDHeader string) *Error {
	e := &Error{
		Method: req.Method,
		URL:    req.URL.String(),
		Status: resp.StatusCode,
		Header: resp.Header,
	}
	if parsed != nil {
		e.RawBody = parsed.Raw
		if parsed.Kind == KindJSON {
			e.Problem = problemFrom(parsed.Data)
		}
	}
	e.Message = errorMessage(resp.StatusCode, e.Problem, e.RawBody)
	if requestIDHeader != "" {
		e.RequestID = strings.TrimSpace(resp.Header.Get(requestIDHeader))
		if e.RequestID == "" {
			e.RequestID = strings.TrimSpace(req.Header.Get(requestIDHeader))
		}
	}
	return e
}
