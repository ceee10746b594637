// migrate applies the embedded registration schema; run with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"rsvp-bot/internal/config"
	"rsvp-bot/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; put it in .env or the environment")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate version:", err)
		os.Exit(1)
	}
	fmt.Printf("schema version %d (dirty=%v)\n", v, dirty)
}
