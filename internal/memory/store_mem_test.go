package memory_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/flemzord/robobrain/internal/memory"
)

func insert(t *testing.T, s *memory.InMemoryStore, rec memory.Record) memory.Record {
	t.Helper()
	out, err := s.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert(%q): %v", rec.Text, err)
	}
	return out
}

func TestInMemoryStore_InsertFillsDefaults(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()

	rec := insert(t, s, memory.Record{Text: "  library opens at 8  ", MemoryType: "knowledge"})
	if rec.ID == "" {
		t.Error("ID not generated")
	}
	if rec.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
	if rec.Text != "library opens at 8" {
		t.Errorf("Text = %q, want trimmed", rec.Text)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestInMemoryStore_InsertValidation(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, memory.Record{Text: " ", MemoryType: "diary"}); !errors.Is(err, memory.ErrEmptyText) {
		t.Errorf("empty text: err = %v, want ErrEmptyText", err)
	}
	if _, err := s.Insert(ctx, memory.Record{Text: "x"}); !errors.Is(err, memory.ErrEmptyType) {
		t.Errorf("empty type: err = %v, want ErrEmptyType", err)
	}
}

func TestInMemoryStore_InsertReplacesSameID(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()

	insert(t, s, memory.Record{ID: "1", Text: "original content", MemoryType: "diary"})
	insert(t, s, memory.Record{ID: "1", Text: "updated content", MemoryType: "diary"})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	got, _ := s.Search(context.Background(), "original", memory.SearchOptions{})
	if len(got) != 0 {
		t.Errorf("old content still searchable: %+v", got)
	}
}

func TestInMemoryStore_Search(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()

	insert(t, s, memory.Record{Text: "library opens at 8 am", MemoryType: "knowledge"})
	insert(t, s, memory.Record{Text: "the library is in building A", MemoryType: "navigation"})
	insert(t, s, memory.Record{Text: "Somchai likes the library cafe", MemoryType: "diary", StudentID: "6501"})
	insert(t, s, memory.Record{Text: "cafeteria serves lunch", MemoryType: "knowledge"})

	tests := []struct {
		name     string
		query    string
		opts     memory.SearchOptions
		wantLen  int
		wantText string
	}{
		{name: "ranked by overlap", query: "library building", wantLen: 3, wantText: "the library is in building A"},
		{name: "case insensitive", query: "LIBRARY", wantLen: 3},
		{name: "type filter", query: "library", opts: memory.SearchOptions{MemoryType: "knowledge"}, wantLen: 1, wantText: "library opens at 8 am"},
		{name: "student filter", query: "library", opts: memory.SearchOptions{StudentID: "6501"}, wantLen: 1},
		{name: "top k", query: "library", opts: memory.SearchOptions{TopK: 2}, wantLen: 2},
		{name: "no overlap", query: "parking", wantLen: 0},
		{name: "blank query", query: "   ", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.Search(context.Background(), tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d (%+v)", len(got), tt.wantLen, got)
			}
			if tt.wantText != "" && got[0].Text != tt.wantText {
				t.Errorf("top = %q, want %q", got[0].Text, tt.wantText)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Score > got[i-1].Score {
					t.Errorf("results not sorted by score: %+v", got)
				}
			}
		})
	}
}

func TestInMemoryStore_SearchThai(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()

	insert(t, s, memory.Record{Text: "ห้องสมุดอยู่ชั้น 2 ของอาคารเรียนรวม", MemoryType: "navigation"})
	insert(t, s, memory.Record{Text: "โรงอาหารเปิดเวลา 7 โมงเช้า", MemoryType: "knowledge"})

	for _, q := range []string{"ห้องสมุดอยู่ไหน", "ห้องสมุด อยู่ไหน", "ห้องสมุด"} {
		got, err := s.Search(context.Background(), q, memory.SearchOptions{})
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(got) != 1 || got[0].MemoryType != "navigation" {
			t.Errorf("Search(%q) = %+v, want the library record only", q, got)
		}
	}
}

func TestRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"exact word", "library", "The Library opens at 8", 1},
		{"half the words", "library building", "library opens at 8", 0.5},
		{"stray trigram", "library", "robotics club diary", 0},
		{"short word", "8", "opens at 8", 1},
		{"punctuation only", "?!", "anything", 0},
		{"thai clause", "ห้องสมุด", "ห้องสมุดอยู่ชั้น 2", 1},
	}
	for _, tt := range tests {
		if got := memory.Relevance(tt.query, tt.text); got != tt.want {
			t.Errorf("%s: Relevance(%q, %q) = %v, want %v", tt.name, tt.query, tt.text, got, tt.want)
		}
	}
}

func TestQueryTrigrams(t *testing.T) {
	t.Parallel()

	got := memory.QueryTrigrams("go, Library!")
	want := []string{"lib", "ibr", "bra", "rar", "ary"}
	if !slices.Equal(got, want) {
		t.Errorf("QueryTrigrams = %v, want %v", got, want)
	}
}

func TestInMemoryStore_SearchDefaultTopK(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()
	for i := range 8 {
		insert(t, s, memory.Record{Text: fmt.Sprintf("note %d", i), MemoryType: "diary"})
	}

	got, _ := s.Search(context.Background(), "note", memory.SearchOptions{})
	if len(got) != memory.DefaultTopK {
		t.Errorf("len = %d, want %d", len(got), memory.DefaultTopK)
	}
}

func TestInMemoryStore_SearchCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := memory.NewInMemoryStore().Search(ctx, "x", memory.SearchOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()
	ctx := context.Background()

	a := insert(t, s, memory.Record{Text: "alpha", MemoryType: "diary"})
	b := insert(t, s, memory.Record{Text: "beta", MemoryType: "diary"})

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, memory.ErrRecordNotFound) {
		t.Errorf("second Delete err = %v, want ErrRecordNotFound", err)
	}
	got, _ := s.Search(ctx, "beta", memory.SearchOptions{})
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("remaining record not found after delete: %+v", got)
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()
	s := memory.NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				_, _ = s.Insert(ctx, memory.Record{Text: fmt.Sprintf("w%d item %d", w, i), MemoryType: "diary"})
				_, _ = s.Search(ctx, "item", memory.SearchOptions{TopK: 3})
			}
		}()
	}
	wg.Wait()

	if s.Len() != 200 {
		t.Errorf("Len() = %d, want 200", s.Len())
	}
}
