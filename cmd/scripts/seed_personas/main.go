// Seeds the Postgres persona registry with the built-in roster so a
// deployment can start editing voices without touching code.
package main

import (
	"context"
	"log"

	"github.com/castmind/castmind/config"
	"github.com/castmind/castmind/internal/persona"
	"github.com/castmind/castmind/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.DBURL == "" {
		log.Fatal("DB_URL is required to seed the persona registry")
	}

	ctx := context.Background()

	postgres, err := store.NewPostgres(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	for _, desc := range persona.DefaultRoster(cfg.CorpusDir) {
		if err := postgres.UpsertPersona(ctx, desc); err != nil {
			log.Fatalf("seed persona %s: %v", desc.Slug, err)
		}
		log.Printf("seeded persona %s (%s)", desc.Slug, desc.DisplayName)
	}
}
