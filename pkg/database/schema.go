package database

import (
	"context"
	"fmt"
)

// columnTypes maps the logical column kinds onto engine type names.
type columnTypes struct {
	text, integer, real string
}

func (db *Database) types() columnTypes {
	switch db.Driver {
	case "pgx":
		return columnTypes{text: "TEXT", integer: "BIGINT", real: "DOUBLE PRECISION"}
	case "duckdb":
		return columnTypes{text: "VARCHAR", integer: "BIGINT", real: "DOUBLE"}
	case "genji":
		return columnTypes{text: "TEXT", integer: "INTEGER", real: "DOUBLE"}
	}
	return columnTypes{text: "TEXT", integer: "INTEGER", real: "REAL"}
}

// InitSchema creates the regions and build_runs tables when missing.
func (db *Database) InitSchema(ctx context.Context) error {
	t := db.types()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS regions (
  id            %[1]s PRIMARY KEY,
  name          %[1]s,
  official_name %[1]s,
  continent     %[1]s,
  population    %[2]s,
  area          %[3]s,
  enclave       %[2]s,
  tlds          %[1]s,
  capitals      %[1]s,
  flag_svg      %[1]s,
  geometry      %[1]s,
  updated_at    %[2]s
)`, t.text, t.integer, t.real),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS build_runs (
  id          %[1]s PRIMARY KEY,
  source      %[1]s,
  started_at  %[2]s,
  duration_ms %[2]s,
  regions     %[2]s,
  polygons    %[2]s,
  failures    %[2]s
)`, t.text, t.integer),
	}
	if err := execStatements(ctx, db.DB, stmts); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}
