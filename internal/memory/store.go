// Package memory defines the long-term memory contract used to ground
// replies: records written by operators or other systems, retrieved by
// relevance to what a student just said.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTopK is used when a search does not ask for a positive count.
const DefaultTopK = 5

// Errors returned by Store implementations.
var (
	ErrRecordNotFound = errors.New("memory: record not found")
	ErrEmptyText      = errors.New("memory: text is required")
	ErrEmptyType      = errors.New("memory: memory_type is required")
)

// Record is one retrievable memory. Score is only meaningful on search
// results; higher is more relevant.
type Record struct {
	ID         string  `json:"id,omitempty"`
	Text       string  `json:"text"`
	MemoryType string  `json:"memory_type"`
	StudentID  string  `json:"student_id"`
	Timestamp  int64   `json:"timestamp"`
	Score      float64 `json:"score"`
}

// SearchOptions narrows a search. Empty filters match everything.
type SearchOptions struct {
	TopK       int
	MemoryType string
	StudentID  string
}

// Limit returns TopK, or DefaultTopK when TopK is not positive.
func (o SearchOptions) Limit() int {
	if o.TopK <= 0 {
		return DefaultTopK
	}
	return o.TopK
}

// Matches reports whether r passes the type and student filters.
func (o SearchOptions) Matches(r Record) bool {
	if o.MemoryType != "" && r.MemoryType != o.MemoryType {
		return false
	}
	if o.StudentID != "" && r.StudentID != o.StudentID {
		return false
	}
	return true
}

// Retriever returns records ranked by descending relevance to query.
type Retriever interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Record, error)
}

// Writer persists records.
type Writer interface {
	// Insert stores rec and returns it with ID and Timestamp filled in.
	Insert(ctx context.Context, rec Record) (Record, error)
}

// Store is a complete memory backend.
// Implementations must be safe for concurrent use.
type Store interface {
	Retriever
	Writer

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// Len returns the total number of stored records.
	Len() int
}

// Prepare validates rec for insertion and fills in a generated ID and the
// current time when missing. Backends call it before writing.
func Prepare(rec Record, now time.Time) (Record, error) {
	rec.Text = strings.TrimSpace(rec.Text)
	if rec.Text == "" {
		return Record{}, ErrEmptyText
	}
	if strings.TrimSpace(rec.MemoryType) == "" {
		return Record{}, ErrEmptyType
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = now.Unix()
	}
	rec.Score = 0
	return rec, nil
}
