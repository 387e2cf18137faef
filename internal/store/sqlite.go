// Package store persists the learning memory: which candidate the user
// chose for which reading, and how often.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS selections (
    reading       TEXT NOT NULL,
    candidate     TEXT NOT NULL,
    count         INTEGER NOT NULL DEFAULT 0,
    last_used_ns  INTEGER NOT NULL,
    PRIMARY KEY (reading, candidate)
);

CREATE INDEX IF NOT EXISTS idx_selections_last_used ON selections(last_used_ns);
`

// Selection is one remembered choice.
type Selection struct {
	Reading   string
	Candidate string
	Count     int64
	LastUsed  time.Time
}

// Stats summarises the memory.
type Stats struct {
	Readings   int64
	Selections int64
	Oldest     time.Time
	Newest     time.Time
}

// Store is the SQLite learning memory. It implements ime.Ranker.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record counts one selection of candidate for reading.
func (s *Store) Record(ctx context.Context, reading, candidate string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO selections (reading, candidate, count, last_used_ns)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(reading, candidate) DO UPDATE SET
			count = count + 1,
			last_used_ns = excluded.last_used_ns`,
		reading, candidate, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record selection: %w", err)
	}
	return nil
}

// Rank re-orders candidates for reading: previously chosen candidates come
// first, most chosen first, ties broken by recency. Unseen candidates keep
// their relative order.
func (s *Store) Rank(ctx context.Context, reading string, candidates []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT candidate, count, last_used_ns FROM selections WHERE reading = ?`, reading)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	type score struct {
		count    int64
		lastUsed int64
	}
	scores := make(map[string]score)
	for rows.Next() {
		var cand string
		var sc score
		if err := rows.Scan(&cand, &sc.count, &sc.lastUsed); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		scores[cand] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selections: %w", err)
	}

	out := append([]string(nil), candidates...)
	if len(scores) == 0 {
		return out, nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := scores[out[i]], scores[out[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.lastUsed > b.lastUsed
	})
	return out, nil
}

// List returns up to limit selections, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reading, candidate, count, last_used_ns FROM selections
		ORDER BY last_used_ns DESC, reading, candidate
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var sel Selection
		var ns int64
		if err := rows.Scan(&sel.Reading, &sel.Candidate, &sel.Count, &ns); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		sel.LastUsed = time.Unix(0, ns)
		out = append(out, sel)
	}
	return out, rows.Err()
}

// Forget removes everything remembered for reading.
func (s *Store) Forget(ctx context.Context, reading string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM selections WHERE reading = ?`, reading)
	if err != nil {
		return 0, fmt.Errorf("forget reading: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes selections last used before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM selections WHERE last_used_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune selections: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarises the memory.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st             Stats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT reading), COUNT(*), MIN(last_used_ns), MAX(last_used_ns)
		FROM selections`).Scan(&st.Readings, &st.Selections, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64)
	}
	return st, nil
}
