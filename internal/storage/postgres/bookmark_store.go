// Package postgres provides a Postgres-backed bookmark.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

const defaultTable = "bookmarks"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for bookmark rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// BookmarkStore persists bookmarks in a single table keyed by
// (owner_id, bookmark_id).
type BookmarkStore struct {
	pool  pool
	table string
}

// NewBookmarkStore creates a Postgres-backed BookmarkStore using the provided config.
func NewBookmarkStore(ctx context.Context, cfg StoreConfig) (*BookmarkStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &BookmarkStore{pool: p, table: table}, nil
}

// NewBookmarkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewBookmarkStoreWithPool(p pool, table string) (*BookmarkStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &BookmarkStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *BookmarkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity for readiness checks.
func (s *BookmarkStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the bookmarks table when it does not exist.
func (s *BookmarkStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	owner_id     TEXT NOT NULL,
	bookmark_id  TEXT NOT NULL,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	image        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	ts           BIGINT NOT NULL,
	snapshot_uri TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (owner_id, bookmark_id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create bookmarks table: %w", err)
	}
	return nil
}

// Put inserts or replaces a bookmark row.
func (s *BookmarkStore) Put(ctx context.Context, b bookmark.Bookmark) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	owner_id,
	bookmark_id,
	url,
	title,
	status,
	image,
	description,
	created_at,
	ts,
	snapshot_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (owner_id, bookmark_id) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	status = EXCLUDED.status,
	image = EXCLUDED.image,
	description = EXCLUDED.description,
	created_at = EXCLUDED.created_at,
	ts = EXCLUDED.ts,
	snapshot_uri = EXCLUDED.snapshot_uri`, s.table)

	args := []any{
		b.OwnerID,
		b.BookmarkID,
		b.URL,
		b.Title,
		string(b.Status),
		b.Image,
		b.Description,
		b.CreatedAt,
		b.Timestamp,
		b.SnapshotURI,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert bookmark: %w", err)
	}
	return nil
}

const selectColumns = `owner_id, bookmark_id, url, title, status, image, description, created_at, ts, snapshot_uri`

// Get returns a single bookmark or bookmark.ErrNotFound.
func (s *BookmarkStore) Get(ctx context.Context, key bookmark.Key) (bookmark.Bookmark, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 AND bookmark_id = $2`, selectColumns, s.table)
	b, err := scanBookmark(s.pool.QueryRow(ctx, query, key.OwnerID, key.BookmarkID))
	if errors.Is(err, pgx.ErrNoRows) {
		return bookmark.Bookmark{}, bookmark.ErrNotFound
	}
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("select bookmark: %w", err)
	}
	return b, nil
}

// List returns all bookmarks of an owner, oldest first.
func (s *BookmarkStore) List(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY ts, bookmark_id`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	out := make([]bookmark.Bookmark, 0)
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}
	return out, nil
}

// UpdateStatus changes the status column only. No row is created when the
// key is missing.
func (s *BookmarkStore) UpdateStatus(ctx context.Context, key bookmark.Key, status bookmark.Status) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE owner_id = $2 AND bookmark_id = $3`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(status), key.OwnerID, key.BookmarkID)
	if err != nil {
		return fmt.Errorf("update bookmark status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return bookmark.ErrNotFound
	}
	return nil
}

// Delete removes a bookmark row. Missing rows are ignored.
func (s *BookmarkStore) Delete(ctx context.Context, key bookmark.Key) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1 AND bookmark_id = $2`, s.table)
	if _, err := s.pool.Exec(ctx, query, key.OwnerID, key.BookmarkID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

func scanBookmark(row pgx.Row) (bookmark.Bookmark, error) {
	var (
		b      bookmark.Bookmark
		status string
	)
	err := row.Scan(
		&b.OwnerID,
		&b.BookmarkID,
		&b.URL,
		&b.Title,
		&status,
		&b.Image,
		&b.Description,
		&b.CreatedAt,
		&b.Timestamp,
		&b.SnapshotURI,
	)
	if err != nil {
		return bookmark.Bookmark{}, err
	}
	b.Status = bookmark.Status(status)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}
