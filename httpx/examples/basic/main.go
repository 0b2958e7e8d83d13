package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/lgc202/restkit/httpx"
)

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func main() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]User{{ID: 1, Name: "ada"}, {ID: 2, Name: "grace"}})
		case http.MethodPost:
			var u User
			_ = json.NewDecoder(r.Body).Decode(&u)
			u.ID = 3
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(u)
		}
	}))
	defer srv.Close()

	client, err := httpx.New(
		httpx.WithBaseURL(srv.URL+"/api"),
		httpx.WithBearer("secret-token"),
		httpx.WithTimeout(5*time.Second),
	)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	users := httpx.NewResource(client, "/users")

	list, err := httpx.As[[]User](users.List(ctx, map[string]any{"page": 1, "active": true}))
	if err != nil {
		panic(err)
	}
	fmt.Printf("users: %+v\n", list)

	created, err := httpx.As[User](users.Create(ctx, User{Name: "linus"}))
	if err != nil {
		panic(err)
	}
	fmt.Printf("created: %+v\n", created)
}
