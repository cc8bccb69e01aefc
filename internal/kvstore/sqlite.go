// Copyright 2025 James Ross
package kvstore

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists chunk data and reference counts in a single table,
// using database/sql with the mattn/go-sqlite3 driver, built in the same
// Store idiom as the other variants.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store at dsn, e.g.
// "file:chunks.db?cache=shared".
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	ref_count INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv_entries (key, value, ref_count) VALUES (?, ?, 1)
ON CONFLICT(key) DO UPDATE SET ref_count = ref_count + 1`, key, value)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE kv_entries SET ref_count = ref_count - 1 WHERE key = ?`, key)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ? AND ref_count <= 0`, key)
	return err
}

func (s *SQLiteStore) PutBatch(ctx context.Context, items map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO kv_entries (key, value, ref_count) VALUES (?, ?, 1)
ON CONFLICT(key) DO UPDATE SET ref_count = ref_count + 1`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for k, v := range items {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := s.Get(ctx, k); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteBatch(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) RefCount(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT ref_count FROM kv_entries WHERE key = ?`, key).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
