package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tahcohcat/vocalize-web/internal/logger"
)

const defaultPath = "vocalize.db"

// migrations are applied in order and recorded in schema_version. Append
// only; never edit an entry that has shipped.
var migrations = []string{
	`CREATE TABLE accounts (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		display_name  TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL,
		last_sign_in  DATETIME,
		disabled      BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`ALTER TABLE accounts ADD COLUMN sign_in_count INTEGER NOT NULL DEFAULT 0`,
}

// DB is the account store's SQLite handle.
type DB struct {
	*sqlx.DB
}

// Open connects to the SQLite file at path and brings its schema up to
// date. ":memory:" gives a private database that lives as long as the
// handle.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = defaultPath
	}

	conn, err := sqlx.ConnectContext(ctx, "sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: sqlite serialises writers anyway, and ":memory:" is
	// per connection.
	conn.SetMaxOpenConns(1)

	db := &DB{DB: conn}
	version, err := db.migrate(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger.New().Named("database").Info("database ready",
		zap.String("path", path), zap.Int("schema_version", version))
	return db, nil
}

func (db *DB) migrate(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		err := db.InTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, i+1)
			return err
		})
		if err != nil {
			return current, fmt.Errorf("migration %d: %w", i+1, err)
		}
		current = i + 1
	}
	return current, nil
}

// InTx runs fn inside a transaction, committing when it returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
