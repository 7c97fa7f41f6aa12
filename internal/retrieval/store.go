// Package retrieval is the snippet store that supplies reference context to
// repairs. Entries are partitioned by run identifier.
package retrieval

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	_ "modernc.org/sqlite"
)

// Metadata keys an entry. Empty fields do not filter.
type Metadata struct {
	Filename string `json:"filename" yaml:"filename"`
	RunID    string `json:"run_id" yaml:"run_id"`
}

// Snippet is one stored entry returned by Query.
type Snippet struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Filename string  `json:"filename"`
	RunID    string  `json:"run_id"`
	Score    float64 `json:"score"`
}

// Store is a keyed snippet store scoped by run identifier.
type Store interface {
	Query(ctx context.Context, text, runID string, k int) ([]Snippet, error)
	Insert(ctx context.Context, content string, meta Metadata) (string, error)
	DeleteByMetadata(ctx context.Context, meta Metadata) (int64, error)
}

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements Store on SQLite with keyword-overlap ranking.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens (creating if needed) the store at path. An empty path or
// MemoryPath opens an in-memory store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create retrieval store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open retrieval store: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snippets (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_snippets_run ON snippets(run_id);
	CREATE INDEX IF NOT EXISTS idx_snippets_file ON snippets(run_id, filename);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create retrieval schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EntryID is the content-derived identifier of an entry. Inserting the same
// file content for the same run twice updates one row.
func EntryID(runID, filename, content string) string {
	sum := sha256.Sum256([]byte(runID + "\x00" + filename + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Insert stores content under meta and returns its id.
func (s *SQLiteStore) Insert(ctx context.Context, content string, meta Metadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := EntryID(meta.RunID, meta.Filename, content)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snippets (id, run_id, filename, content) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`,
		id, meta.RunID, meta.Filename, content)
	if err != nil {
		return "", fmt.Errorf("insert snippet: %w", err)
	}
	return id, nil
}

// DeleteByMetadata removes entries matching every non-empty field of meta.
// An all-empty filter deletes nothing.
func (s *SQLiteStore) DeleteByMetadata(ctx context.Context, meta Metadata) (int64, error) {
	var conds []string
	var args []interface{}
	if meta.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, meta.RunID)
	}
	if meta.Filename != "" {
		conds = append(conds, "filename = ?")
		args = append(args, meta.Filename)
	}
	if len(conds) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM snippets WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("delete snippets: %w", err)
	}
	return res.RowsAffected()
}

// Query returns up to k entries of runID ranked by how many distinct query
// terms they contain. Entries sharing no term with text are not returned.
func (s *SQLiteStore) Query(ctx context.Context, text, runID string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = 3
	}
	terms := Terms(text)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, filename, run_id FROM snippets WHERE run_id = ? ORDER BY updated_at DESC, rowid DESC",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.ID, &sn.Content, &sn.Filename, &sn.RunID); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		sn.Score = score(terms, Terms(sn.Content))
		if sn.Score > 0 {
			results = append(results, sn)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Terms splits text into lowercase identifier-like terms of two or more
// characters. Underscored identifiers also contribute their parts.
func Terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		add := func(t string) {
			if len(t) >= 2 {
				out[t] = struct{}{}
			}
		}
		add(w)
		if strings.Contains(w, "_") {
			for _, part := range strings.Split(w, "_") {
				add(part)
			}
		}
	}
	return out
}

func score(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
