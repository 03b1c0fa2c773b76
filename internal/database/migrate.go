package database

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed migrations.sql
var schema string

// Migrate applies the embedded schema. Every statement is idempotent, so
// running it against an up-to-date database is a no-op.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
