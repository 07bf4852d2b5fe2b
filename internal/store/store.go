package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory audit log. It lives as long as the
// Store and skips WAL, which SQLite does not support in memory.
const MemoryPath = ":memory:"

// ErrSchemaTooNew is returned when a database was written by a newer
// binary whose runs and field_events layout this one cannot read.
var ErrSchemaTooNew = errors.New("audit database schema is newer than supported")

// migration upgrades an audit database by one user_version.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations run in order inside one transaction each. The base tables come
// from schema.sql; a database created before a migration existed picks it up
// on the next Open.
var migrations = []migration{
	{
		version: 1,
		name:    "field outcome index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_field_events_field ON field_events(field, outcome)`,
		},
	},
	{
		version: 2,
		name:    "run outcome index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(contract_id, outcome, seq)`,
		},
	},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// pragma is one connection setting applied on open.
type pragma struct {
	name, value string
}

// filePragmas starts with journal_mode, which in-memory databases skip.
var filePragmas = []pragma{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Store is the audit log of pipeline runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path, or a private in-memory
// one for MemoryPath. Pragmas, the base schema and pending migrations are
// applied on every open, so opening an existing log is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := filePragmas
	if path == MemoryPath {
		pragmas = pragmas[1:]
	}
	if err := applyPragmas(db, pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the migration level of the open database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return userVersion(ctx, s.db)
}

func applyPragmas(db *sql.DB, pragmas []pragma) error {
	for _, p := range pragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// applySchema creates the runs and field_events tables, then brings the
// database up to currentSchemaVersion.
func applySchema(ctx context.Context, db *sql.DB) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: version %d, this binary reads up to %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := migrate(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
