package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder replaces real backoff sleeps.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// countingTransport answers every attempt with fn and counts the calls.
type countingTransport struct {
	calls atomic.Int32
	fn    func(req *http.Request, n int) (*http.Response, error)
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := int(c.calls.Add(1))
	return c.fn(req, n)
}

func TestRequest_GetScenario(t *testing.T) {
	var (
		calls    atomic.Int32
		gotPath  string
		gotQuery string
		gotCache string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotPath, gotQuery, gotCache = r.URL.Path, r.URL.RawQuery, r.Header.Get("Cache-Control")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, WithBaseURL(srv.URL))
	resp, err := c.Request(context.Background(), &Request{Path: "/api/users", Query: map[string]any{"limit": 10}})
	require.NoError(t, err)

	assert.Equal(t, KindJSON, resp.Kind)
	assert.Equal(t, map[string]any{"data": []any{}}, resp.Data)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, "/api/users", gotPath)
	assert.Equal(t, "limit=10", gotQuery)
	assert.Empty(t, gotCache)
}

func TestRequest_PostBearerScenario(t *testing.T) {
	var (
		got       http.Header
		body      []byte
		cacheMode CacheMode
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1,"name":"x"}`)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t,
		WithBaseURL(srv.URL),
		WithOnRequest(func(req *http.Request, _ int) error {
			cacheMode = CacheModeOf(req)
			return nil
		}),
	)
	resp, err := c.Request(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/api/users",
		Auth:   &Auth{Kind: AuthBearer, Token: "T"},
		JSON:   map[string]string{"name": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	assert.Equal(t, "Bearer T", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "no-store", got.Get("Cache-Control"))
	assert.Equal(t, CacheNoStore, cacheMode)
	assert.JSONEq(t, `{"name":"x"}`, string(body))
}

func TestRequest_RetryBudget(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"title":"busy"}`), nil
		}}
		var s sleepRecorder
		c := newTestClient(t,
			WithBaseURL("https://api.example.com"),
			WithTransport(rt),
			WithRetry(n),
			WithRetrySleep(s.sleep),
		)

		_, err := c.Get(context.Background(), "/x", nil)
		he, ok := AsError(err)
		require.True(t, ok, "retry=%d: %v", n, err)
		assert.Equal(t, http.StatusServiceUnavailable, he.Status)
		assert.Equal(t, "busy", he.Message)
		assert.Equal(t, n+1, he.Attempts)
		assert.Equal(t, int32(n+1), rt.calls.Load(), "retry=%d", n)
		assert.Len(t, s.recorded(), n)
	}
}

func TestRequest_RetryRecoversWithBackoff(t *testing.T) {
	rt := &countingTransport{fn: func(_ *http.Request, n int) (*http.Response, error) {
		if n < 3 {
			return jsonResponse(http.StatusBadGateway, ""), nil
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	}}
	var s sleepRecorder
	c := newTestClient(t,
		WithBaseURL("https://api.example.com"),
		WithTransport(rt),
		WithRetry(5),
		WithRetryDelay(100*time.Millisecond),
		WithRetrySleep(s.sleep),
		WithJitter(func() float64 { return 0.5 }),
	)

	resp, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, s.recorded())
}

func TestRequest_NoRetryOnNonRetryableStatus(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"detail":"name required","code":"VALIDATION"}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(3))

	_, err := c.Post(context.Background(), "/x", map[string]any{})
	he, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, int32(1), rt.calls.Load())
	assert.Equal(t, "name required", he.Message)
	assert.Equal(t, "VALIDATION", he.Code())
	assert.True(t, IsStatus(err, http.StatusBadRequest))
}

func TestRequest_PerCallRetryOverride(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, ""), nil
	}}
	var s sleepRecorder
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetrySleep(s.sleep))

	_, err := c.Request(context.Background(), &Request{Path: "/x", Retry: Ptr(2), RetryOn: []int{500}})
	require.Error(t, err)
	assert.Equal(t, int32(3), rt.calls.Load())
}

func TestRequest_TransportErrorsRetriedThenWrapped(t *testing.T) {
	errReset := errors.New("connection reset by peer")
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return nil, errReset
	}}
	var s sleepRecorder
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(2), WithRetrySleep(s.sleep))

	_, err := c.Get(context.Background(), "/x", nil)
	he, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 0, he.Status)
	assert.Equal(t, 3, he.Attempts)
	assert.ErrorIs(t, err, errReset)
	assert.Equal(t, int32(3), rt.calls.Load())
}

func TestRequest_NoRetryOnTimeout(t *testing.T) {
	rt := &countingTransport{fn: func(req *http.Request, _ int) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c := newTestClient(t,
		WithBaseURL("https://h"),
		WithTransport(rt),
		WithRetry(3),
		WithTimeout(30*time.Millisecond),
	)

	_, err := c.Get(context.Background(), "/slow", nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestRequest_TransportDeadlineNotRetried(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(3))

	_, err := c.Get(context.Background(), "/x", nil)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestRequest_TimeoutCoversBackoff(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, ""), nil
	}}
	c := newTestClient(t,
		WithBaseURL("https://h"),
		WithTransport(rt),
		WithRetry(3),
		WithRetryDelay(10*time.Second),
		WithTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := c.Get(context.Background(), "/x", nil)
	assert.True(t, IsTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestRequest_CallerCancel(t *testing.T) {
	started := make(chan struct{})
	rt := &countingTransport{fn: func(req *http.Request, _ int) (*http.Response, error) {
		close(started)
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(3))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := c.Get(ctx, "/x", nil)
	assert.True(t, IsCanceled(err), "got %v", err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, int32(1), rt.calls.Load())
}

func TestRequest_PerCallTimeoutDisabled(t *testing.T) {
	rt := &countingTransport{fn: func(req *http.Request, _ int) (*http.Response, error) {
		if _, ok := req.Context().Deadline(); ok {
			return nil, errors.New("unexpected deadline")
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithTimeout(time.Second))

	_, err := c.Request(context.Background(), &Request{Path: "/x", Timeout: -1})
	assert.NoError(t, err)
}

func TestRequest_DefaultHasNoDeadline(t *testing.T) {
	rt := &countingTransport{fn: func(req *http.Request, _ int) (*http.Response, error) {
		if _, ok := req.Context().Deadline(); ok {
			return nil, errors.New("unexpected deadline")
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))
	assert.Zero(t, c.Config().Timeout)

	_, err := c.Get(context.Background(), "/x", nil)
	assert.NoError(t, err)
}

func TestRequest_MessageFallback(t *testing.T) {
	tests := []struct {
		name    string
		ct      string
		body    string
		message string
		code    string
		problem bool
	}{
		{name: "empty detail falls to title", ct: "application/json", body: `{"title":"Bad","detail":""}`, message: "Bad", code: FallbackCode, problem: true},
		{name: "detail wins", ct: "application/problem+json", body: `{"title":"Bad","detail":"worse","code":"E1"}`, message: "worse", code: "E1", problem: true},
		{name: "raw text", ct: "text/plain", body: "upstream exploded", message: "upstream exploded", code: FallbackCode},
		{name: "json array is not a problem", ct: "application/json", body: `["a"]`, message: `["a"]`, code: FallbackCode},
		{name: "empty body", ct: "", body: "", message: "Request failed with status 500", code: FallbackCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusInternalServerError,
					Header:     http.Header{"Content-Type": {tt.ct}},
					Body:       io.NopCloser(strings.NewReader(tt.body)),
				}, nil
			})
			c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))

			_, err := c.Get(context.Background(), "/x", nil)
			he, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, he.Message)
			assert.Equal(t, tt.code, he.Code())
			assert.Equal(t, tt.problem, he.Problem != nil)
			assert.Equal(t, tt.body, string(he.RawBody))
		})
	}
}

func TestRequest_AuthOverrideIsolation(t *testing.T) {
	var got []http.Header
	var mu sync.Mutex
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		got = append(got, req.Header.Clone())
		mu.Unlock()
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithBearer("A"))

	_, err := c.Request(context.Background(), &Request{Path: "/x", Auth: &Auth{Kind: AuthCookie, Cookie: "sid=1"}})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Empty(t, got[0].Get("Authorization"))
	assert.Equal(t, "sid=1", got[0].Get("Cookie"))
	for _, vv := range got[0] {
		for _, v := range vv {
			assert.NotContains(t, v, "Bearer")
		}
	}
	// the client default is untouched
	assert.Equal(t, "Bearer A", got[1].Get("Authorization"))
	assert.Equal(t, AuthBearer, c.Config().Auth.Kind)
}

func TestRequest_AuthOverridesExplicitHeader(t *testing.T) {
	var got string
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithBearer("real"))

	_, err := c.Request(context.Background(), &Request{Path: "/x", Header: http.Header{"Authorization": {"Bearer stale"}}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer real", got)
}

func TestRequest_TokenProvider(t *testing.T) {
	var calls atomic.Int32
	var got []string
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got = append(got, req.Header.Get("Authorization"))
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt),
		WithTokenProvider(func(ctx context.Context) (string, error) {
			n := calls.Add(1)
			if n == 1 {
				return "first", nil
			}
			return "", nil
		}),
	)

	_, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)

	// a missing token is lenient by default
	assert.Equal(t, []string{"Bearer first", ""}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequest_TokenProviderError(t *testing.T) {
	errVault := errors.New("vault sealed")
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(3),
		WithTokenProvider(func(context.Context) (string, error) { return "", errVault }),
	)

	_, err := c.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, errVault)
	assert.Equal(t, int32(0), rt.calls.Load())
}

func TestRequest_StrictAuth(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithBearer(""), WithStrictAuth(true))

	_, err := c.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, int32(0), rt.calls.Load())
}

func TestRequest_ConfigErrorBeforeIO(t *testing.T) {
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithTransport(rt))

	_, err := c.Get(context.Background(), "/users", nil)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrRelativeWithoutBase)

	_, err = c.Request(context.Background(), &Request{Path: "https://h/x", JSON: make(chan int)})
	assert.True(t, IsConfigError(err))

	assert.Equal(t, int32(0), rt.calls.Load())

	// absolute URLs need no base
	_, err = c.Get(context.Background(), "https://h/users", nil)
	assert.NoError(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(WithBaseURL("/relative"))
	assert.True(t, IsConfigError(err))

	_, err = New(WithRetry(-1))
	assert.True(t, IsConfigError(err))
}

func TestRequest_ResponseKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "hello")
		case "/broken":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, "{not json")
		case "/json-empty":
			w.Header().Set("Content-Type", "application/json")
		}
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, WithBaseURL(srv.URL))
	ctx := context.Background()

	resp, err := c.Get(ctx, "/empty", nil)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, resp.Kind)
	assert.Nil(t, resp.Data)

	resp, err = c.Get(ctx, "/text", nil)
	require.NoError(t, err)
	assert.Equal(t, KindText, resp.Kind)
	assert.Equal(t, "hello", resp.Data)

	resp, err = c.Get(ctx, "/broken", nil)
	require.NoError(t, err)
	assert.Equal(t, KindText, resp.Kind)
	assert.Equal(t, "{not json", resp.Data)

	resp, err = c.Get(ctx, "/json-empty", nil)
	require.NoError(t, err)
	assert.Equal(t, KindJSON, resp.Kind)
	assert.Nil(t, resp.Data)
}

func TestRequest_BodyTooLarge(t *testing.T) {
	big := `{"data":"` + strings.Repeat("a", 9<<20) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/big":
			_, _ = io.WriteString(w, big)
		case "/big-error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"detail":"`+strings.Repeat("x", 128)+`"}`)
		case "/fits":
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	c := newTestClient(t, WithBaseURL(srv.URL))
	resp, err := c.Get(ctx, "/big", nil)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	he, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, he.Status)
	assert.Equal(t, "application/json", he.Header.Get("Content-Type"))
	assert.Nil(t, he.RawBody)

	small := newTestClient(t, WithBaseURL(srv.URL), WithMaxBodyBytes(64))
	_, err = small.Get(ctx, "/big-error", nil)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	he, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Nil(t, he.Problem)
	assert.Nil(t, he.RawBody)

	resp, err = small.Get(ctx, "/fits", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data)
}

func TestRequest_DefaultsAndOverrides(t *testing.T) {
	var got http.Header
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got = req.Header.Clone()
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t,
		WithBaseURL("https://h"),
		WithTransport(rt),
		WithDefaultHeader("X-Tenant", "a"),
		WithDefaultHeader("Accept-Language", "en"),
		WithUserAgent("restkit-test/1"),
	)

	_, err := c.Request(context.Background(), &Request{
		Path:   "/x",
		Header: http.Header{"x-tenant": {"b"}},
		JSON:   map[string]int{"n": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.Values("X-Tenant"))
	assert.Equal(t, "en", got.Get("Accept-Language"))
	assert.Equal(t, "restkit-test/1", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Len(t, got.Get("X-Request-ID"), 36)
}

func TestRequest_ExplicitContentTypeKept(t *testing.T) {
	var ct string
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ct = req.Header.Get("Content-Type")
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))

	_, err := c.Request(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/x",
		Header: http.Header{"Content-Type": {"application/vnd.api+json"}},
		JSON:   map[string]int{"n": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.api+json", ct)
}

func TestRequest_Multipart(t *testing.T) {
	var (
		name, file string
		ct         string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name = r.FormValue("name")
		f, _, err := r.FormFile("avatar")
		if err == nil {
			b, _ := io.ReadAll(f)
			file = string(b)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, WithBaseURL(srv.URL), WithDefaultHeader("Content-Type", "application/json"))

	_, err := c.Request(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body: &Form{
			Fields: map[string][]string{"name": {"ada"}},
			Files:  []FormFile{{Field: "avatar", Filename: "a.png", ContentType: "image/png", Content: []byte("PNG")}},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), ct)
	assert.Equal(t, "ada", name)
	assert.Equal(t, "PNG", file)
}

func TestRequest_FormURLEncoded(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm.Get("grant_type")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, WithBaseURL(srv.URL))

	_, err := c.Request(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/token",
		Body:   map[string][]string{"grant_type": {"client_credentials"}},
	})
	// plain maps are not a supported raw body
	assert.True(t, IsConfigError(err))

	_, err = c.Request(context.Background(), &Request{
		Method: http.MethodPost,
		Path:   "/token",
		Body:   urlValues("grant_type", "client_credentials"),
	})
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", got)
}

func TestRequest_RetryReplaysBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	var s sleepRecorder
	c := newTestClient(t, WithBaseURL(srv.URL), WithRetry(1), WithRetrySleep(s.sleep))

	_, err := c.Request(context.Background(), &Request{Method: http.MethodPut, Path: "/x", Body: strings.NewReader("payload")})
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestRequest_Redirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"at":"new"}`)
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, WithBaseURL(srv.URL))
	ctx := context.Background()

	resp, err := c.Get(ctx, "/old", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", resp.URL)

	resp, err = c.Request(ctx, &Request{Path: "/old", Redirect: RedirectManual})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/new", resp.Header.Get("Location"))

	_, err = c.Request(ctx, &Request{Path: "/old", Redirect: RedirectError})
	assert.ErrorIs(t, err, ErrRedirect)
	_, ok := AsError(err)
	assert.True(t, ok)
}

func TestRequest_CredentialsModes(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		if ck, err := r.Cookie("sid"); err == nil {
			_, _ = io.WriteString(w, ck.Value)
			return
		}
		_, _ = io.WriteString(w, "anonymous")
	}
	api := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(api.Close)
	other := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(other.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := newTestClient(t, WithBaseURL(api.URL), WithCookieJar(jar))
	ctx := context.Background()

	_, err = c.Get(ctx, "/login", nil)
	require.NoError(t, err)

	resp, err := c.Get(ctx, "/me", nil)
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.Data)

	resp, err = c.Request(ctx, &Request{Path: "/me", Credentials: CredentialsOmit})
	require.NoError(t, err)
	assert.Equal(t, "anonymous", resp.Data)

	// cookies ignore ports, so only the credentials mode keeps them off the other origin
	resp, err = c.Get(ctx, other.URL+"/me", nil)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", resp.Data)

	resp, err = c.Request(ctx, &Request{Path: other.URL + "/me", Credentials: CredentialsInclude})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.Data)
}

func TestRequest_HooksAndRateLimiter(t *testing.T) {
	rt := &countingTransport{fn: func(_ *http.Request, n int) (*http.Response, error) {
		if n == 1 {
			return jsonResponse(http.StatusTooManyRequests, ""), nil
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	var (
		mu        sync.Mutex
		before    []int
		after     []int
		statuses  []int
		limiterOK atomic.Int32
	)
	var s sleepRecorder
	c := newTestClient(t,
		WithBaseURL("https://h"),
		WithTransport(rt),
		WithRetry(2),
		WithRetrySleep(s.sleep),
		WithRateLimiter(limiterFunc(func(context.Context) error {
			limiterOK.Add(1)
			return nil
		})),
		WithOnRequest(func(req *http.Request, attempt int) error {
			mu.Lock()
			defer mu.Unlock()
			before = append(before, attempt)
			return nil
		}),
		WithOnResponse(func(req *http.Request, resp *http.Response, err error, dur time.Duration, attempt int) {
			mu.Lock()
			defer mu.Unlock()
			after = append(after, attempt)
			statuses = append(statuses, resp.StatusCode)
		}),
	)

	_, err := c.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, before)
	assert.Equal(t, []int{1, 2}, after)
	assert.Equal(t, []int{429, 200}, statuses)
	assert.Equal(t, int32(2), limiterOK.Load())
}

func TestRequest_HookAbort(t *testing.T) {
	errDenied := errors.New("denied by policy")
	rt := &countingTransport{fn: func(*http.Request, int) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}}
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithRetry(3),
		WithOnRequest(func(*http.Request, int) error { return errDenied }),
	)

	_, err := c.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, errDenied)
	assert.Equal(t, int32(0), rt.calls.Load())
}

func TestRequest_KeepAliveAndCache(t *testing.T) {
	var (
		closeReq bool
		cache    string
	)
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		closeReq = req.Close
		cache = req.Header.Get("Cache-Control")
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))

	_, err := c.Request(context.Background(), &Request{Path: "/x", KeepAlive: Ptr(false), Cache: CacheReload})
	require.NoError(t, err)
	assert.True(t, closeReq)
	assert.Equal(t, "no-cache", cache)
}

func TestRequest_RequestIDOnError(t *testing.T) {
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(http.StatusNotFound, `{"title":"Not Found"}`)
		resp.Header.Set("X-Request-ID", "server-"+req.Header.Get("X-Request-ID"))
		return resp, nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))

	_, err := c.Request(context.Background(), &Request{Path: "/x", Header: http.Header{"X-Request-ID": {"abc"}}})
	he, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "server-abc", he.RequestID)
	assert.Contains(t, he.Error(), "request_id=server-abc")
	assert.Contains(t, he.Error(), "http 404")
}

func TestRequest_LogsRedactSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rt := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithLogger(logger))

	_, err := c.Get(context.Background(), "/x", map[string]any{"api_key": "s3cr3t", "page": 1})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "http request", rec["msg"])
	assert.Equal(t, float64(200), rec["status"])
	assert.Contains(t, rec["url"], "REDACTED")
	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestWithDefaults_DoesNotMutateParent(t *testing.T) {
	var got []http.Header
	var mu sync.Mutex
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		got = append(got, req.Header.Clone())
		mu.Unlock()
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	parent := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt), WithDefaultHeader("X-A", "1"))
	child, err := parent.WithDefaults(WithDefaultHeader("X-B", "2"), WithBearer("child"), WithRetry(4))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = parent.Get(ctx, "/x", nil)
	require.NoError(t, err)
	_, err = child.Get(ctx, "/x", nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Get("X-A"))
	assert.Empty(t, got[0].Get("X-B"))
	assert.Empty(t, got[0].Get("Authorization"))
	assert.Equal(t, "1", got[1].Get("X-A"))
	assert.Equal(t, "2", got[1].Get("X-B"))
	assert.Equal(t, "Bearer child", got[1].Get("Authorization"))

	assert.Equal(t, 0, parent.Config().Retry)
	assert.Equal(t, 4, child.Config().Retry)
}

func TestClient_ConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusOK, `{"path":"`+req.URL.Path+`"}`), nil
	})
	c := newTestClient(t, WithBaseURL("https://h"), WithTransport(rt))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Get(context.Background(), "/p", nil)
			assert.NoError(t, err)
			assert.Equal(t, map[string]any{"path": "/p"}, resp.Data)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), calls.Load())
}

type limiterFunc func(context.Context) error

func (f limiterFunc) Wait(ctx context.Context) error { return f(ctx) }

func urlValues(kv ...string) url.Values {
	m := make(url.Values)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = append(m[kv[i]], kv[i+1])
	}
	return m
}
