package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := ensureLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; pragmas below are per-connection.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS options (
  option_key  TEXT PRIMARY KEY,
  value       JSON NOT NULL,
  updated_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
  number             TEXT NOT NULL DEFAULT '',
  billing_email      TEXT NOT NULL DEFAULT '',
  billing_first_name TEXT NOT NULL DEFAULT '',
  created_at         TEXT NOT NULL,
  updated_at         TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS order_shipping_lines (
  order_id   INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  position   INTEGER NOT NULL,
  method_id  TEXT NOT NULL,
  title      TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (order_id, position)
);`,
		`CREATE TABLE IF NOT EXISTS order_meta (
  order_id   INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  meta_key   TEXT NOT NULL,
  meta_value TEXT NOT NULL,
  PRIMARY KEY (order_id, meta_key)
);`,
		`CREATE TABLE IF NOT EXISTS order_notes (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id         INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  note             TEXT NOT NULL,
  customer_visible INTEGER NOT NULL DEFAULT 0,
  created_at       TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  name         TEXT NOT NULL,
  topic        TEXT NOT NULL,
  delivery_url TEXT NOT NULL,
  secret       TEXT NOT NULL,
  status       TEXT NOT NULL,
  created_at   TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
  id              TEXT PRIMARY KEY,
  subscription_id INTEGER NOT NULL,
  topic           TEXT NOT NULL,
  resource_id     INTEGER NOT NULL,
  status          TEXT NOT NULL,
  attempt         INTEGER NOT NULL DEFAULT 0,
  max_attempts    INTEGER NOT NULL,
  next_attempt_at TEXT NOT NULL,
  response_code   INTEGER,
  last_error      TEXT,
  created_at      TEXT NOT NULL,
  completed_at    TEXT
);`,
		`CREATE TABLE IF NOT EXISTS notification_outbox (
  id              TEXT PRIMARY KEY,
  event           TEXT NOT NULL,
  payload         JSON NOT NULL,
  status          TEXT NOT NULL,
  attempt         INTEGER NOT NULL DEFAULT 0,
  max_attempts    INTEGER NOT NULL,
  next_attempt_at TEXT NOT NULL,
  last_error      TEXT,
  created_at      TEXT NOT NULL,
  completed_at    TEXT
);`,
		`CREATE INDEX IF NOT EXISTS order_notes_order_idx ON order_notes(order_id, id);`,
		`CREATE INDEX IF NOT EXISTS subscriptions_topic_status_idx ON subscriptions(topic, status);`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_due_idx ON webhook_deliveries(status, next_attempt_at);`,
		`CREATE INDEX IF NOT EXISTS notification_outbox_due_idx ON notification_outbox(status, next_attempt_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
