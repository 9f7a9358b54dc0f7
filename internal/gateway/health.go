package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/robobrain/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok", "degraded" or "unavailable"
	Version   string                 `json:"version"`
	Uptime    int64                  `json:"uptime_seconds"`
	Sessions  int                    `json:"sessions"`
	Providers []provider.EntryStatus `json:"providers"`
}

// handleHealth returns an http.HandlerFunc for GET /health. It answers 503
// only when no provider can take a request; a chain running on its
// fallback is degraded but still serving.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			Version:   g.version,
			Uptime:    int64(time.Since(g.startedAt).Seconds()),
			Sessions:  g.brain.SessionCount(),
			Providers: []provider.EntryStatus{},
		}

		code := http.StatusOK
		if g.chain != nil {
			resp.Providers = g.chain.HealthReport()
			available := 0
			for _, p := range resp.Providers {
				if p.Available {
					available++
				}
			}
			switch {
			case available == 0:
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			case available < len(resp.Providers):
				resp.Status = "degraded"
			}
		}

		writeJSON(w, code, resp)
	}
}
