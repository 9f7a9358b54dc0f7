// Package ctxengine turns session state and retrieved memories into the
// prompt the language model sees. Building and rendering are separate steps
// so the structured form can be inspected and tested on its own.
package ctxengine

import (
	"fmt"
	"strings"

	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/session"
)

// Unknown stands in for identity or location that has not been reported.
const Unknown = "unknown"

// Retention limits. History is truncated twice: HistoryTurns are kept in
// the structured context and only the newest RenderedTurns of those are
// rendered.
const (
	MaxMemories   = 3
	HistoryTurns  = 5
	RenderedTurns = 3
)

// MemoryRef is a retained memory in the structured context.
type MemoryRef struct {
	Content string  `json:"content"`
	Score   float64 `json:"relevance_score"`
	Type    string  `json:"type"`
}

// StructuredContext is everything the prompt is rendered from.
type StructuredContext struct {
	StudentID   string         `json:"student_id"`
	StudentName string         `json:"student_name"`
	Location    string         `json:"current_location"`
	Environment map[string]any `json:"environment"`
	History     []session.Turn `json:"conversation_history"`
	Memories    []MemoryRef    `json:"relevant_memories"`
}

// Build extracts the structured context. Memories must already be ranked;
// they are truncated, never reordered.
func Build(sess session.Session, memories []memory.Record) StructuredContext {
	sc := StructuredContext{
		StudentID:   orUnknown(sess.StudentID),
		StudentName: orUnknown(sess.StudentName),
		Location:    orUnknown(sess.CurrentLocation),
		Environment: sess.Environment,
		History:     sess.RecentTurns(HistoryTurns),
	}
	if sc.Environment == nil {
		sc.Environment = map[string]any{}
	}

	n := min(len(memories), MaxMemories)
	sc.Memories = make([]MemoryRef, n)
	for i, m := range memories[:n] {
		sc.Memories[i] = MemoryRef{Content: m.Text, Score: m.Score, Type: m.MemoryType}
	}
	return sc
}

func orUnknown(p *string) string {
	if p == nil || *p == "" {
		return Unknown
	}
	return *p
}

// Render produces the prompt fragment. Sections appear in a fixed order and
// are omitted when their data is missing: greeting, location, memories,
// recent conversation.
func Render(sc StructuredContext) string {
	var parts []string

	if sc.StudentName != Unknown && sc.StudentName != "" {
		parts = append(parts, "คุณกำลังพูดคุยกับ "+sc.StudentName)
	}
	if sc.Location != Unknown && sc.Location != "" {
		parts = append(parts, "ตำแหน่งปัจจุบัน: "+sc.Location)
	}

	if len(sc.Memories) > 0 {
		parts = append(parts, "\nความทรงจำที่เกี่ยวข้อง:")
		for i, m := range sc.Memories {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, m.Content))
		}
	}

	if len(sc.History) > 0 {
		parts = append(parts, "\nบทสนทนาล่าสุด:")
		turns := sc.History
		if len(turns) > RenderedTurns {
			turns = turns[len(turns)-RenderedTurns:]
		}
		for _, t := range turns {
			parts = append(parts, roleLabel(t.Role)+": "+t.Content)
		}
	}

	return strings.Join(parts, "\n")
}

func roleLabel(r session.Role) string {
	if r == session.RoleUser {
		return "นักศึกษา"
	}
	return "หุ่นยนต์"
}
