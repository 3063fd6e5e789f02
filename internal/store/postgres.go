// Package store archives formatted addresses in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("formatted address not found")

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS formatted_addresses (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            request_key   TEXT NOT NULL,
            country_code  TEXT NOT NULL,
            components    JSONB NOT NULL,
            formatted     TEXT NOT NULL,
            created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_formatted_request_key ON formatted_addresses(request_key);`,
		`CREATE INDEX IF NOT EXISTS idx_formatted_country ON formatted_addresses(country_code, updated_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Record is one archived format result.
type Record struct {
	ID          string
	RequestKey  string
	CountryCode string
	Components  map[string]string
	Formatted   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Upsert stores rec keyed by its request key and returns the row id.
func (s *Store) Upsert(ctx context.Context, rec Record) (string, error) {
	if s.DB == nil {
		return "", errors.New("nil db")
	}
	if rec.RequestKey == "" {
		return "", errors.New("request key is required")
	}
	comps, err := json.Marshal(rec.Components)
	if err != nil {
		return "", fmt.Errorf("encode components: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
        INSERT INTO formatted_addresses (request_key, country_code, components, formatted)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (request_key)
        DO UPDATE SET country_code=EXCLUDED.country_code, components=EXCLUDED.components, formatted=EXCLUDED.formatted, updated_at=now()
        RETURNING id`,
		rec.RequestKey, rec.CountryCode, string(comps), rec.Formatted,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get loads the record stored under requestKey.
func (s *Store) Get(ctx context.Context, requestKey string) (Record, error) {
	var (
		rec   Record
		comps []byte
	)
	err := s.DB.QueryRowContext(ctx, `
        SELECT id, request_key, country_code, components, formatted, created_at, updated_at
        FROM formatted_addresses
        WHERE request_key=$1`, requestKey,
	).Scan(&rec.ID, &rec.RequestKey, &rec.CountryCode, &comps, &rec.Formatted, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(comps, &rec.Components); err != nil {
		return Record{}, fmt.Errorf("decode components: %w", err)
	}
	return rec, nil
}

// ListByCountry returns the most recently updated records for a country.
func (s *Store) ListByCountry(ctx context.Context, countryCode string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
        SELECT id, request_key, country_code, components, formatted, created_at, updated_at
        FROM formatted_addresses
        WHERE country_code=$1
        ORDER BY updated_at DESC
        LIMIT $2`, countryCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec   Record
			comps []byte
		)
		if err := rows.Scan(&rec.ID, &rec.RequestKey, &rec.CountryCode, &comps, &rec.Formatted, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(comps, &rec.Components); err != nil {
			return nil, fmt.Errorf("decode components: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
