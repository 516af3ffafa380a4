package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

// BlobStore is the durable key/value surface every local document is kept in.
// Get reports found=false for a missing key rather than an error.
type BlobStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

const (
	queryGet    = `SELECT value FROM kv_store WHERE key = ?`
	queryPut    = `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	queryDelete = `DELETE FROM kv_store WHERE key = ?`
	queryKeys   = `SELECT key FROM kv_store WHERE substr(key, 1, ?) = ? ORDER BY key`
)

// KVStore implements BlobStore on the kv_store table.
type KVStore struct {
	db  *sql.DB
	now func() time.Time

	// Prepared statement cache keyed by query text
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewKVStore creates a KVStore over an opened database.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db.DB, now: time.Now}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *KVStore) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare statement", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Get returns the blob stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	stmt, err := s.PrepareStmt(ctx, queryGet)
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = stmt.QueryRowContext(ctx, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to read %q", key), err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous blob.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return apperrors.New(apperrors.ErrValidation, "key must not be empty")
	}
	if value == nil {
		value = []byte{}
	}

	stmt, err := s.PrepareStmt(ctx, queryPut)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key, value, s.now().UnixMilli()); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to write %q", key), err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	stmt, err := s.PrepareStmt(ctx, queryDelete)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to delete %q", key), err)
	}
	return nil
}

// Keys lists stored keys starting with prefix, in lexical order.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	stmt, err := s.PrepareStmt(ctx, queryKeys)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, len(prefix), prefix)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list keys", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan key", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list keys", err)
	}
	return keys, nil
}

// Close closes all cached prepared statements.
func (s *KVStore) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stmtCache.Delete(key)
		return true
	})
	return firstErr
}
