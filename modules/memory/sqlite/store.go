package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/robobrain/internal/memory"
)

// recordStore implements memory.Store backed by SQLite with FTS5.
type recordStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Insert stores or replaces a record. The FTS5 index follows via triggers.
func (s *recordStore) Insert(ctx context.Context, rec memory.Record) (memory.Record, error) {
	rec, err := memory.Prepare(rec, s.now())
	if err != nil {
		return memory.Record{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, text, memory_type, student_id, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			memory_type = excluded.memory_type,
			student_id = excluded.student_id,
			timestamp = excluded.timestamp`,
		rec.ID, rec.Text, rec.MemoryType, rec.StudentID, rec.Timestamp,
	)
	if err != nil {
		return memory.Record{}, fmt.Errorf("sqlite: insert memory: %w", err)
	}
	return rec, nil
}

// candidateFactor widens the FTS5 fetch so the relevance filter still
// leaves opts.Limit() records.
const candidateFactor = 4

// Search finds candidates through the trigram index, drops those that share
// only stray trigrams with the query, and ranks the rest with bm25. SQLite
// reports bm25 as negative with better matches more negative, so the score
// is its negation.
func (s *recordStore) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, nil
	}

	var (
		where strings.Builder
		args  = []any{match}
	)
	where.WriteString("memories_fts MATCH ?")
	if opts.MemoryType != "" {
		where.WriteString(" AND m.memory_type = ?")
		args = append(args, opts.MemoryType)
	}
	if opts.StudentID != "" {
		where.WriteString(" AND m.student_id = ?")
		args = append(args, opts.StudentID)
	}
	limit := opts.Limit()
	args = append(args, limit*candidateFactor)

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.text, m.memory_type, m.student_id, m.timestamp, -bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE `+where.String()+`
		ORDER BY score DESC, m.timestamp DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []memory.Record
	for rows.Next() {
		var rec memory.Record
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.MemoryType, &rec.StudentID, &rec.Timestamp, &rec.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		if len(out) < limit && memory.Relevance(query, rec.Text) > 0 {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan memory rows: %w", err)
	}
	return out, nil
}

// matchExpr ORs the query's trigrams as quoted FTS5 strings, so
// punctuation in the utterance can never be parsed as query syntax. Words
// shorter than three runes cannot hit a trigram index and are skipped.
func matchExpr(query string) string {
	grams := memory.QueryTrigrams(query)
	quoted := make([]string, 0, len(grams))
	for _, g := range grams {
		quoted = append(quoted, `"`+strings.ReplaceAll(g, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Delete removes a record by ID.
func (s *recordStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return memory.ErrRecordNotFound
	}
	return nil
}

// Len returns the total number of stored records.
func (s *recordStore) Len() int {
	var count int
	if err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM memories").Scan(&count); err != nil {
		s.logger.Error("sqlite: count memories failed", "error", err)
		return 0
	}
	return count
}
