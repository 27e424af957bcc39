package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maastricht-university/transcript-pipeline/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS media_documents (
    media_id   TEXT        NOT NULL,
    kind       TEXT        NOT NULL,
    body       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (media_id, kind)
)`

// Postgres stores each document as one jsonb row keyed by media id and kind.
// An upsert replaces the whole document in a single statement.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (db *Postgres) Close() {
	db.pool.Close()
}

func (db *Postgres) save(ctx context.Context, mediaID, kind string, v any) error {
	if err := ValidateMediaID(mediaID); err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO media_documents (media_id, kind, body, updated_at)
        VALUES ($1, $2, $3::jsonb, now())
        ON CONFLICT (media_id, kind)
        DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
    `
	if _, err := db.pool.Exec(ctx, query, mediaID, kind, string(body)); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

func (db *Postgres) load(ctx context.Context, mediaID, kind string, v any) error {
	if err := ValidateMediaID(mediaID); err != nil {
		return err
	}
	var body []byte
	err := db.pool.QueryRow(ctx,
		`SELECT body FROM media_documents WHERE media_id = $1 AND kind = $2`,
		mediaID, kind,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return json.Unmarshal(body, v)
}

func (db *Postgres) SaveTranscript(ctx context.Context, mediaID string, t *models.Transcript) error {
	return db.save(ctx, mediaID, kindTranscript, t)
}

func (db *Postgres) LoadTranscript(ctx context.Context, mediaID string) (*models.Transcript, error) {
	var t models.Transcript
	if err := db.load(ctx, mediaID, kindTranscript, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *Postgres) SaveSubtitles(ctx context.Context, mediaID string, d *models.SubtitleDocument) error {
	return db.save(ctx, mediaID, kindSubtitles, d)
}

func (db *Postgres) LoadSubtitles(ctx context.Context, mediaID string) (*models.SubtitleDocument, error) {
	var d models.SubtitleDocument
	if err := db.load(ctx, mediaID, kindSubtitles, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
