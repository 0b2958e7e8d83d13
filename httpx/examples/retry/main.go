package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/lgc202/restkit/httpx"
)

func main() {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"title":"Conflict","detail":"name already taken","code":"NAME_TAKEN"}`))
	}))
	defer srv.Close()

	client, err := httpx.New(
		httpx.WithBaseURL(srv.URL),
		httpx.WithRetry(3),
		httpx.WithRetryDelay(50*time.Millisecond),
	)
	if err != nil {
		panic(err)
	}

	_, err = client.Post(context.Background(), "/users", map[string]string{"name": "ada"})
	if he, ok := httpx.AsError(err); ok {
		fmt.Printf("status=%d code=%s message=%q attempts=%d\n", he.Status, he.Code(), he.Message, he.Attempts)
	}
}
