package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/iliyamo/limited-seats/internal/model"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables when they do not exist and seeds one ledger
// row per tier.  Both steps are idempotent; an existing ledger row is
// never touched.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	const seed = `INSERT IGNORE INTO seat_ledger (tier, total_available) VALUES (?, ?)`
	for _, t := range model.Tiers {
		if _, err := db.ExecContext(ctx, seed, string(t), model.SeatsPerTier); err != nil {
			return fmt.Errorf("seed ledger %s: %w", t, err)
		}
	}
	return nil
}

// statements splits a SQL script on semicolons that end a line.
func statements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";\n") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
