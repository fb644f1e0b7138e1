// Package postgres implements every repository interface used by the
// pipeline against a single PostgreSQL database, following the
// "Store owns persistence, everything else gets dependency-injected a
// handle to it" shape (spec §9 "Global state").
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/eventflow/internal/domain"
)

// ErrNotFound is returned by lookup methods when no row matches. It is
// domain.ErrNotFound so callers can use errors.Is without depending on
// this package for the sentinel.
var ErrNotFound = domain.ErrNotFound

// Store is the concrete, transactional persistence layer for events,
// queue jobs, processing log, registries, revenue, and relationships
// (spec §2 component A, §3 "Ownership").
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB. Callers own the connection
// lifecycle (Open/Close, pool sizing).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a PostgreSQL connection pool from a DSN and applies the
// given pool limits.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// Ping verifies the Store's database connection is reachable, used by
// the health-check endpoint (spec §6).
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// DB exposes the underlying *sql.DB for components (e.g. distlock) that
// need raw access. Prefer the typed repository methods where possible.
func (s *Store) DB() *sql.DB { return s.db }
