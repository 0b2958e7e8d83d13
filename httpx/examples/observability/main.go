package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lgc202/restkit/httpx"
	"github.com/lgc202/restkit/metrics"
	"github.com/lgc202/restkit/tracing"
)

func main() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "tenant=%s traceparent=%s", r.Header.Get("X-Tenant"), r.Header.Get("Traceparent"))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	opts := []httpx.Option{
		httpx.WithBaseURL(srv.URL),
		httpx.WithLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		httpx.WithMiddleware(tracing.Middleware(tracing.WithPropagator(tracing.W3CPropagator()))),
		httpx.WithOnRequest(func(req *http.Request, attempt int) error {
			req.Header.Set("X-Tenant", "tenant-a")
			return nil
		}),
		httpx.WithOnResponse(func(req *http.Request, resp *http.Response, err error, dur time.Duration, attempt int) {
			code := 0
			if resp != nil {
				code = resp.StatusCode
			}
			fmt.Printf("method=%s status=%d err=%v dur=%s attempt=%d cache=%s\n",
				req.Method, code, err, dur, attempt, httpx.CacheModeOf(req))
		}),
	}
	client, err := httpx.New(append(opts, collector.Options()...)...)
	if err != nil {
		panic(err)
	}

	resp, err := client.Get(context.Background(), "/", map[string]any{"api_key": "hidden-in-logs"})
	if err != nil {
		panic(err)
	}
	fmt.Println(resp.Data)

	families, _ := reg.Gather()
	for _, mf := range families {
		fmt.Println(mf.GetName())
	}
}
