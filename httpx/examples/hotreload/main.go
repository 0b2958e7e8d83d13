package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lgc202/restkit/config"
	"github.com/lgc202/restkit/httpx"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	p, err := httpx.NewProvider("./config.yaml", []httpx.ProviderOption{
		httpx.WithEnvPrefix("APP"),
		httpx.WithProviderLogger(logger),
	}, httpx.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	c := p.Client().Config()
	log.Printf("base_url=%s timeout=%s retry=%d", c.BaseURL, c.Timeout, c.Retry)

	// A second, independent view of the same file; config.Changed narrows the callback.
	raw, err := config.Load[httpx.FileConfig]("./config.yaml",
		config.WithDefaults[httpx.FileConfig](httpx.FileDefaults()),
	)
	if err != nil {
		log.Fatal(err)
	}
	raw.OnChange(func(old, new httpx.FileConfig) {
		if config.Changed(old.Auth, new.Auth) {
			log.Printf("auth changed: kind %s -> %s", old.Auth.Kind, new.Auth.Kind)
		}
	})

	log.Println("edit config.yaml to trigger a reload, Ctrl+C to exit")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
