// Package store is the thin adapter over the primary emails table
// (emails(address, processed, validatedAt)). The full primary store is
// an external system this package doesn't own; it only implements the
// contract the result cache's RefreshExpired needs — "ensure the
// address exists in the primary store" — using lib/pq.
package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// EmailStore is the contract the cache's refresh pass depends on.
type EmailStore interface {
	// EnsureRegistered inserts address into the primary table if it is
	// not already tracked there; a no-op if it is.
	EnsureRegistered(address string) error
	// MarkValidated records that address was just (re)probed.
	MarkValidated(address string, validatedAt time.Time) error
}

// PostgresStore implements EmailStore against a Postgres connection.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB. Schema creation is the
// external collaborator's responsibility, not this package's — it
// assumes the table already exists.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureRegistered(address string) error {
	_, err := s.db.Exec(
		`INSERT INTO emails (address, processed, "validatedAt")
		 VALUES ($1, false, NULL)
		 ON CONFLICT (address) DO NOTHING`,
		address,
	)
	return err
}

func (s *PostgresStore) MarkValidated(address string, validatedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE emails SET processed = true, "validatedAt" = $2 WHERE address = $1`,
		address, validatedAt,
	)
	return err
}
