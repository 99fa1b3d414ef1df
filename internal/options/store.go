// Package options is the process-wide configuration store: JSON values under
// string keys with single-key atomicity.
package options

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const maxValueBytes = 64 << 10

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get decodes the value stored under key into dst. found is false when the key is missing.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("option key is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM options WHERE option_key = ?;", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read option %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode option %q: %w", key, err)
	}
	return true, nil
}

// GetString returns the string option or def when it is missing.
func (s *Store) GetString(ctx context.Context, key, def string) (string, error) {
	var v string
	found, err := s.Get(ctx, key, &v)
	if err != nil {
		return "", err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return fmt.Errorf("option key is empty")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode option %q: %w", key, err)
	}
	if len(b) > maxValueBytes {
		return fmt.Errorf("option %q exceeds max size (%d bytes)", key, maxValueBytes)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO options(option_key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(option_key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, string(b), now)
	if err != nil {
		return fmt.Errorf("upsert option %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("option key is empty")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE option_key = ?;", key); err != nil {
		return fmt.Errorf("delete option %q: %w", key, err)
	}
	return nil
}
