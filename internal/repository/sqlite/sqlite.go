// Package sqlite implements the repository interfaces on SQLite.
//
// The driver is modernc.org/sqlite — a pure Go translation of the
// SQLite C code, so there is no CGo dependency and cross-compilation
// just works. The database lives in a single file (or ":memory:" for
// tests).
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: the driver's init() registers itself with
	// database/sql under the name "sqlite".
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB connection pool and carries the repository
// methods for every entity.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, configures it and runs migrations.
// Use ":memory:" for an in-memory database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A single connection keeps the PRAGMAs below in effect for every
	// query and makes ":memory:" behave as one database rather than one
	// per pooled connection. SQLite serializes writers anyway.
	conn.SetMaxOpenConns(1)

	// Force an immediate connection so a bad path surfaces here, not on
	// the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — required
	// for a web server where requests share the file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Referential integrity for movie_tags / user_follows.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Defer it wherever New is called.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe
// to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                    TEXT PRIMARY KEY,
			username              TEXT NOT NULL UNIQUE,
			email                 TEXT NOT NULL UNIQUE,
			password_hash         TEXT NOT NULL,
			name                  TEXT NOT NULL DEFAULT '',
			about                 TEXT NOT NULL DEFAULT '',
			gender                TEXT NOT NULL DEFAULT '',
			birth_date            TEXT NOT NULL DEFAULT '',
			avatar_path           TEXT NOT NULL DEFAULT '',
			is_public             INTEGER NOT NULL DEFAULT 0,
			status                TEXT NOT NULL DEFAULT 'active',
			notifications_read_at DATETIME,
			created_at            DATETIME NOT NULL,
			updated_at            DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS movies (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES users(id),
			list              TEXT NOT NULL,
			title             TEXT NOT NULL,
			year              INTEGER,
			runtime_min       INTEGER,
			genres_csv        TEXT NOT NULL DEFAULT '',
			description       TEXT NOT NULL DEFAULT '',
			notes             TEXT NOT NULL DEFAULT '',
			watched           INTEGER NOT NULL DEFAULT 0,
			rating            INTEGER,
			watched_at        TEXT,
			poster_path       TEXT NOT NULL DEFAULT '',
			url               TEXT NOT NULL DEFAULT '',
			deleted_from_list TEXT,
			deleted_at        DATETIME,
			added_at          DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_movies_user_list ON movies(user_id, list);
		CREATE INDEX IF NOT EXISTS idx_movies_added_at ON movies(added_at);
	`)
	if err != nil {
		return fmt.Errorf("creating movies table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			name       TEXT NOT NULL,
			color      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tags_user ON tags(user_id);

		CREATE TABLE IF NOT EXISTS movie_tags (
			movie_id TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
			tag_id   TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (movie_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_movie_tags_tag ON movie_tags(tag_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tag tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			movie_id   TEXT NOT NULL,
			action     TEXT NOT NULL,
			rating     INTEGER,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);

		CREATE TABLE IF NOT EXISTS user_follows (
			follower_id TEXT NOT NULL REFERENCES users(id),
			followee_id TEXT NOT NULL REFERENCES users(id),
			created_at  DATETIME NOT NULL,
			PRIMARY KEY (follower_id, followee_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating notification tables: %w", err)
	}

	return nil
}
