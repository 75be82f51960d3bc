// Package sqlite provides a durable memory.Store backed by a single
// SQLite database file.
//
// Embeddings are stored as little-endian float32 blobs and similarity
// is computed in process during search. That keeps the backend to one
// ordinary file with no extensions, at the cost of scanning an owner's
// records per query. Owners hold conversation-scale record counts, so
// the scan stays cheap.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/blockvoltcr7/mem0-ai-api/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	metadata   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id);
CREATE INDEX IF NOT EXISTS idx_memories_owner_created ON memories(owner_id, created_at);
`

// SQLiteStore is a memory.Store persisted in one SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent turns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert inserts the record, replacing any row with the same ID.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *memory.Record) (string, error) {
	if rec.OwnerID == "" {
		return "", memory.ErrOwnerRequired
	}

	metaJSON, err := json.Marshal(rec.Metadata.Encode())
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, owner_id, session_id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id   = excluded.owner_id,
			session_id = excluded.session_id,
			content    = excluded.content,
			embedding  = excluded.embedding,
			metadata   = excluded.metadata,
			created_at = excluded.created_at`,
		rec.ID, rec.OwnerID, rec.SessionID, rec.Content,
		memory.EmbeddingToBytes(rec.Embedding), string(metaJSON), rec.CreatedAt.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return rec.ID, nil
}

// Search loads the owner's records, applies the metadata filter, and
// returns up to k hits ranked by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, ownerID string, embedding []float32, filter memory.Filter, k int) ([]memory.Hit, error) {
	if ownerID == "" {
		return nil, memory.ErrOwnerRequired
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, embedding, metadata, created_at
		FROM memories
		WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var hits []memory.Hit
	for rows.Next() {
		var (
			id, sessionID, content, metaJSON string
			blob                             []byte
			createdUnix                      int64
		)
		if err := rows.Scan(&id, &sessionID, &content, &blob, &metaJSON, &createdUnix); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}

		var encoded map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &encoded); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}

		rec := &memory.Record{
			ID:        id,
			OwnerID:   ownerID,
			Content:   content,
			Embedding: memory.BytesToEmbedding(blob),
			Metadata:  memory.DecodeMetadata(encoded),
			CreatedAt: time.Unix(createdUnix, 0).UTC(),
			SessionID: sessionID,
		}
		if !filter.MatchesRecord(rec) {
			continue
		}
		hits = append(hits, memory.Hit{
			Record:     rec,
			Similarity: memory.CosineSimilarity(embedding, rec.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteAll removes every record belonging to the owner and returns
// how many rows were deleted.
func (s *SQLiteStore) DeleteAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, memory.ErrOwnerRequired
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted rows: %w", err)
	}
	return int(n), nil
}
