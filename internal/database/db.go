package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/interstellar-swap/relayer/internal/config"
)

// New opens the Postgres connection and verifies it.
func New(cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
