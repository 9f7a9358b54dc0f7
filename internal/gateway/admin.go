package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/robobrain/internal/core"
)

// sessionSummary is a compact session line for operators.
type sessionSummary struct {
	ID          string    `json:"session_id"`
	StudentID   string    `json:"student_id,omitempty"`
	Location    string    `json:"current_location,omitempty"`
	HistoryLen  int       `json:"history_len"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// handleListSessions returns all live sessions.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		all := g.brain.Sessions()
		out := make([]sessionSummary, 0, len(all))
		for _, s := range all {
			sum := sessionSummary{
				ID:          s.ID,
				HistoryLen:  len(s.History),
				CreatedAt:   s.CreatedAt,
				LastUpdated: s.LastUpdated,
			}
			if s.StudentID != nil {
				sum.StudentID = *s.StudentID
			}
			if s.CurrentLocation != nil {
				sum.Location = *s.CurrentLocation
			}
			out = append(out, sum)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleListModules lists the compiled modules, or only one namespace's
// with ?namespace=provider.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mods := core.GetModules()
		if ns := r.URL.Query().Get("namespace"); ns != "" {
			mods = core.GetModulesByNamespace(ns)
		}
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
