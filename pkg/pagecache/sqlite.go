package pagecache

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists entries in a single SQLite database file. It suits
// single-node deployments that want restart survival without an object store.
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes writers; SQLite allows only one at a time.
	writeMu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS page_cache (key TEXT PRIMARY KEY, produced INTEGER, data BLOB)",
		"PRAGMA journal_mode=WAL",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM page_cache WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO page_cache (key, produced, data) VALUES (?, ?, ?)",
		key, entry.ProducedAt.Unix(), data)
	return err
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM page_cache WHERE key = ?", key)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
