// Package database persists region records and build runs through
// database/sql. The engine is picked at startup (sqlite, chai, genji,
// duckdb or pgx); drivers are registered by the drivers subpackage.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Database wraps the pool together with the normalized driver name so SQL
// builders can pick placeholders and column types.
type Database struct {
	DB     *sql.DB
	Driver string

	logf func(string, ...any)
}

// Config holds the connection settings.
type Config struct {
	DBType    string // sqlite, chai, genji, duckdb or pgx
	DBPath    string // file path for embedded engines
	DBConn    string // raw DSN for pgx
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	PGSSLMode string
	Port      int // used in the default file name
}

func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// DSN returns the data source name for cfg.
func (cfg Config) DSN() (string, error) {
	driver := normalizeDBType(cfg.DBType)
	switch driver {
	case "sqlite", "chai", "genji", "duckdb":
		if cfg.DBPath != "" {
			return cfg.DBPath, nil
		}
		return fmt.Sprintf("world-study-%d.%s", cfg.Port, driver), nil
	case "pgx":
		if strings.TrimSpace(cfg.DBConn) != "" {
			return cfg.DBConn, nil
		}
		sslMode := cfg.PGSSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, sslMode), nil
	}
	return "", fmt.Errorf("unsupported database type: %s", cfg.DBType)
}

// NewDatabase opens the database, tunes embedded engines and pings it.
// Embedded engines run on a single connection.
func NewDatabase(cfg Config, logf func(string, ...any)) (*Database, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	driver := normalizeDBType(cfg.DBType)
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %w", err)
	}

	switch driver {
	case "sqlite", "chai", "genji", "duckdb":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case "pgx":
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := tune(db, driver, logf); err != nil {
		logf("%s tuning stopped early: %v", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	logf("Using database driver: %s", driver)
	return &Database{DB: db, Driver: driver, logf: logf}, nil
}

// Close releases the pool.
func (db *Database) Close() error { return db.DB.Close() }

// setting is one engine knob. Settings whose statement echoes the new
// value (journal_mode) are read back and logged.
type setting struct {
	name, stmt string
	echoes     bool
}

// engineSettings favours reads: the region tables are rewritten on import
// and then only queried.
func engineSettings(driver string) []setting {
	switch driver {
	case "sqlite":
		return []setting{
			{"journal_mode", "PRAGMA journal_mode=WAL", true},
			{"synchronous", "PRAGMA synchronous=NORMAL", false},
			{"busy_timeout", "PRAGMA busy_timeout=5000", false},
			{"cache_size", "PRAGMA cache_size=-16000", false},
			{"mmap_size", "PRAGMA mmap_size=67108864", false},
		}
	case "duckdb":
		return []setting{{"threads", fmt.Sprintf("SET threads TO %d", max(runtime.NumCPU(), 1)), false}}
	}
	return nil
}

// tune applies engineSettings in order, stopping at the first failure. The
// whole sequence shares one two second budget.
func tune(db *sql.DB, driver string, logf func(string, ...any)) error {
	list := engineSettings(driver)
	if len(list) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range list {
		if !s.echoes {
			if _, err := db.ExecContext(ctx, s.stmt); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			continue
		}
		var got string
		if err := db.QueryRowContext(ctx, s.stmt).Scan(&got); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		logf("%s %s = %s", driver, s.name, got)
	}
	logf("%s: %d settings applied", driver, len(list))
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the driver.
func (db *Database) placeholder(n int) string {
	if db.Driver == "pgx" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (db *Database) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = db.placeholder(i + 1)
	}
	return strings.Join(parts, ",")
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execStatements(ctx context.Context, exec sqlExecutor, stmts []string) error {
	for _, raw := range stmts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
