// Package cache provides the local SQLite block cache for roamsync.
//
// The cache stores fetched page subtrees so repeated renders and ref
// resolution do not hit the backend for every block. It runs in
// embedded mode (ncruces/go-sqlite3) with WAL for concurrent reads.
//
// Architecture:
//   - Database file: ~/.cache/roamsync/blocks.db (configurable)
//   - Schema: one blocks table, a row per block, tree shape via
//     parent_uid + ord
//   - A page is replaced wholesale on refresh, so a cached page is
//     always internally consistent
//
// Workflow:
//  1. pull/push fetches a page through cache.Fetcher
//  2. Fresh entries are served from SQLite, misses go to the backend
//     and are written back
//  3. The watch daemon sweeps entries past their TTL
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/roamtools/roamsync/internal/block"
)

// Store wraps the SQLite connection holding cached blocks.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a cache store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads and is created, schema included, if it does not exist.
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the blocks table and indexes. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		uid TEXT PRIMARY KEY,
		page_title TEXT NOT NULL,
		parent_uid TEXT NOT NULL DEFAULT '',
		ord INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL DEFAULT '',
		heading INTEGER NOT NULL DEFAULT 0,
		todo TEXT NOT NULL DEFAULT '',
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page_title);
	CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks(parent_uid);
	CREATE INDEX IF NOT EXISTS idx_blocks_fetched ON blocks(fetched_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// PutPage replaces the cached copy of a page with the given tree.
func (s *Store) PutPage(title string, root *block.Block) error {
	return s.PutPageContext(context.Background(), title, root)
}

// PutPageContext replaces a cached page with context support.
//
// The old rows for the page and the new subtree are swapped in one
// transaction, so readers never see a half-replaced page.
func (s *Store) PutPageContext(ctx context.Context, title string, root *block.Block) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE page_title = ?`, title); err != nil {
		return fmt.Errorf("failed to clear cached page %q: %w", title, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO blocks (uid, page_title, parent_uid, ord, text, heading, todo, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(uid) DO UPDATE SET
		page_title = excluded.page_title,
		parent_uid = excluded.parent_uid,
		ord = excluded.ord,
		text = excluded.text,
		heading = excluded.heading,
		todo = excluded.todo,
		fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	var insert func(b *block.Block, parentUID string, ord int) error
	insert = func(b *block.Block, parentUID string, ord int) error {
		if b.UID == "" {
			return fmt.Errorf("cannot cache block without uid under page %q", title)
		}
		_, err := stmt.ExecContext(ctx,
			b.UID, title, parentUID, ord, b.Text, b.Attrs.Heading, b.Attrs.Todo, now)
		if err != nil {
			return fmt.Errorf("failed to upsert block %s: %w", b.UID, err)
		}
		for i, c := range b.Children {
			if err := insert(c, b.UID, i); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(root, "", 0); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached page %q: %w", title, err)
	}
	return nil
}

// GetPage rebuilds a cached page tree by title.
func (s *Store) GetPage(title string) (*block.Block, error) {
	return s.GetPageContext(context.Background(), title)
}

// GetPageContext rebuilds a cached page with context support.
// Returns block.ErrNotFound when the page is not cached.
func (s *Store) GetPageContext(ctx context.Context, title string) (*block.Block, error) {
	root, _, err := s.loadPage(ctx, title)
	return root, err
}

// GetBlock rebuilds a cached block subtree by uid.
func (s *Store) GetBlock(uid string) (*block.Block, error) {
	return s.GetBlockContext(context.Background(), uid)
}

// GetBlockContext rebuilds a cached block subtree with context support.
// Returns block.ErrNotFound when the block is not cached.
func (s *Store) GetBlockContext(ctx context.Context, uid string) (*block.Block, error) {
	var title string
	err := s.conn.QueryRowContext(ctx,
		`SELECT page_title FROM blocks WHERE uid = ?`, uid).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, block.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up block %s: %w", uid, err)
	}

	root, _, err := s.loadPage(ctx, title)
	if err != nil {
		return nil, err
	}
	b, ok := root.Index()[uid]
	if !ok {
		return nil, block.ErrNotFound
	}
	return b, nil
}

// Age reports how long ago a page was cached.
// Returns block.ErrNotFound when the page is not cached.
func (s *Store) Age(ctx context.Context, title string) (time.Duration, error) {
	var fetchedAt string
	err := s.conn.QueryRowContext(ctx,
		`SELECT fetched_at FROM blocks WHERE page_title = ? AND parent_uid = ''`,
		title).Scan(&fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, block.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache age for %q: %w", title, err)
	}

	t, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to parse fetched_at for %q: %w", title, err)
	}
	return time.Since(t), nil
}

// DeleteStale removes all pages fetched before the cutoff.
// Returns the number of rows removed.
func (s *Store) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM blocks WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return n, nil
}

// Clear removes every cached block.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM blocks`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Stats summarizes cache contents for the cache status command.
type Stats struct {
	Pages  int
	Blocks int
}

// GetStats counts cached pages and blocks.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT page_title), COUNT(*) FROM blocks`).
		Scan(&st.Pages, &st.Blocks)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return st, nil
}

// loadPage reads every row of a page and rebuilds the tree.
func (s *Store) loadPage(ctx context.Context, title string) (*block.Block, time.Time, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT uid, parent_uid, ord, text, heading, todo, fetched_at
	FROM blocks WHERE page_title = ?`, title)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load page %q: %w", title, err)
	}
	defer rows.Close()

	type row struct {
		parentUID string
		ord       int
	}
	blocks := make(map[string]*block.Block)
	meta := make(map[string]row)
	var root *block.Block
	var fetchedAt time.Time

	for rows.Next() {
		var uid, parentUID, text, todo, fetched string
		var ord, heading int
		if err := rows.Scan(&uid, &parentUID, &ord, &text, &heading, &todo, &fetched); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached block: %w", err)
		}
		b := &block.Block{
			UID:   uid,
			Text:  text,
			Attrs: block.Attrs{Heading: heading, Todo: todo},
		}
		blocks[uid] = b
		meta[uid] = row{parentUID: parentUID, ord: ord}
		if parentUID == "" {
			root = b
			if t, err := time.Parse(time.RFC3339, fetched); err == nil {
				fetchedAt = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to iterate cached page %q: %w", title, err)
	}
	if root == nil {
		return nil, time.Time{}, block.ErrNotFound
	}

	for uid, b := range blocks {
		m := meta[uid]
		if m.parentUID == "" {
			continue
		}
		parent, ok := blocks[m.parentUID]
		if !ok {
			return nil, time.Time{}, fmt.Errorf("cached page %q has orphan block %s", title, uid)
		}
		parent.Children = append(parent.Children, b)
	}
	for _, b := range blocks {
		children := b.Children
		sort.SliceStable(children, func(i, j int) bool {
			return meta[children[i].UID].ord < meta[children[j].UID].ord
		})
	}

	return root, fetchedAt, nil
}
