// Package store holds the optional persistence layers: a Postgres
// persona registry and a Mongo transcript archive. The pipeline itself
// never touches either; the server wires them in around it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castmind/castmind/internal/persona"
)

// Postgres wraps the connection pool for the persona registry.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects and pings within a short dial timeout.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, errors.New("postgres connection url is empty")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// EnsureSchema creates the persona registry table when absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS personas (
    id                INTEGER PRIMARY KEY,
    slug              TEXT NOT NULL UNIQUE,
    display_name      TEXT NOT NULL,
    voice_prompt      TEXT NOT NULL,
    style             TEXT NOT NULL,
    strengths         JSONB NOT NULL DEFAULT '[]'::jsonb,
    approach          TEXT NOT NULL DEFAULT '',
    conflict_handling TEXT NOT NULL DEFAULT '',
    corpus_path       TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	if _, err := p.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure personas table: %w", err)
	}

	return nil
}

// UpsertPersona writes one roster descriptor into the registry.
func (p *Postgres) UpsertPersona(ctx context.Context, desc persona.Descriptor) error {
	strengths, err := json.Marshal(desc.Style.Strengths)
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}

	const query = `
INSERT INTO personas (id, slug, display_name, voice_prompt, style, strengths, approach, conflict_handling, corpus_path)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (slug) DO UPDATE SET
    display_name      = EXCLUDED.display_name,
    voice_prompt      = EXCLUDED.voice_prompt,
    style             = EXCLUDED.style,
    strengths         = EXCLUDED.strengths,
    approach          = EXCLUDED.approach,
    conflict_handling = EXCLUDED.conflict_handling,
    corpus_path       = EXCLUDED.corpus_path`

	if _, err := p.Pool.Exec(ctx, query,
		desc.ID, desc.Slug, desc.DisplayName, desc.VoicePrompt,
		desc.Style.Name, strengths, desc.Style.Approach, desc.Style.ConflictHandling,
		desc.CorpusPath,
	); err != nil {
		return fmt.Errorf("upsert persona %s: %w", desc.Slug, err)
	}

	return nil
}

// ListPersonas loads the roster in ID order. An empty registry returns an
// empty slice, not an error; the caller decides whether to fall back to
// the built-in roster.
func (p *Postgres) ListPersonas(ctx context.Context) ([]persona.Descriptor, error) {
	const query = `
SELECT id, slug, display_name, voice_prompt, style, strengths, approach, conflict_handling, corpus_path
FROM personas
ORDER BY id`

	rows, err := p.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var roster []persona.Descriptor
	for rows.Next() {
		var (
			desc      persona.Descriptor
			strengths []byte
		)
		if err := rows.Scan(
			&desc.ID, &desc.Slug, &desc.DisplayName, &desc.VoicePrompt,
			&desc.Style.Name, &strengths, &desc.Style.Approach, &desc.Style.ConflictHandling,
			&desc.CorpusPath,
		); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}

		if len(strengths) > 0 {
			if err := json.Unmarshal(strengths, &desc.Style.Strengths); err != nil {
				return nil, fmt.Errorf("decode strengths for %s: %w", desc.Slug, err)
			}
		}

		roster = append(roster, desc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personas: %w", err)
	}

	return roster, nil
}
