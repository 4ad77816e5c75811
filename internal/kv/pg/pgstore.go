// Package pg implements kv.Store on a single Postgres table.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"deskbot.org/internal/kv"
)

// Store persists values in kv_entries(key, value, updated_at).
type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)
var _ kv.Pinger = (*Store)(nil)

// Open connects to Postgres with pool defaults sized for a single-process
// bot.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `select value from kv_entries where key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		insert into kv_entries(key, value, updated_at)
		values ($1,$2,now())
		on conflict (key) do update
		set value = excluded.value, updated_at = now()
	`, key, value)
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `delete from kv_entries where key=$1`, key)
	return err
}

// Ping verifies the connection for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
