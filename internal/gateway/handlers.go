package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/session"
	"github.com/go-chi/chi/v5"
)

type rootResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (g *Gateway) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, rootResponse{Status: "running", Service: "robobrain", Version: g.version})
	}
}

type contextUpdateResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (g *Gateway) handleContextUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req brain.ContextUpdate
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		if _, err := g.brain.UpdateContext(req); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, contextUpdateResponse{
			Status:    "success",
			SessionID: req.SessionID,
			Message:   "Context updated",
		})
	}
}

type speechRequest struct {
	SessionID  string   `json:"session_id"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (g *Gateway) handleSpeechInput() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		if req.Confidence == nil {
			writeError(w, r, g.logger, &brain.ValidationError{Field: "confidence", Msg: "is required"})
			return
		}

		res, err := g.brain.ProcessSpeech(r.Context(), brain.SpeechInput{
			SessionID:  req.SessionID,
			Text:       req.Text,
			Confidence: *req.Confidence,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// The robot hung up; nobody reads this.
				w.WriteHeader(499)
				return
			}
			writeError(w, r, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type memoryInsertRequest struct {
	Text       string `json:"text"`
	MemoryType string `json:"memory_type"`
	StudentID  string `json:"student_id"`
	Timestamp  *int64 `json:"timestamp"`
}

type memoryInsertResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (g *Gateway) handleMemoryInsert() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memoryInsertRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		rec := memory.Record{Text: req.Text, MemoryType: req.MemoryType, StudentID: req.StudentID}
		if req.Timestamp != nil {
			rec.Timestamp = *req.Timestamp
		}

		out, err := g.brain.InsertMemory(r.Context(), rec)
		if err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, memoryInsertResponse{Status: "success", Message: "Memory inserted", ID: out.ID})
	}
}

type memorySearchRequest struct {
	Query      string `json:"query"`
	TopK       *int   `json:"top_k"`
	MemoryType string `json:"memory_type"`
	StudentID  string `json:"student_id"`
}

type memorySearchResponse struct {
	Status   string          `json:"status"`
	Count    int             `json:"count"`
	Memories []memory.Record `json:"memories"`
}

func (g *Gateway) handleMemorySearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memorySearchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		opts := memory.SearchOptions{
			TopK:       memory.DefaultTopK,
			MemoryType: req.MemoryType,
			StudentID:  req.StudentID,
		}
		if req.TopK != nil {
			if *req.TopK < 1 {
				writeError(w, r, g.logger, &brain.ValidationError{Field: "top_k", Msg: "must be within [1, 100]"})
				return
			}
			opts.TopK = *req.TopK
		}

		recs, err := g.brain.SearchMemory(r.Context(), req.Query, opts)
		if err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, memorySearchResponse{Status: "success", Count: len(recs), Memories: recs})
	}
}

type sessionResponse struct {
	Status  string          `json:"status"`
	Session session.Session `json:"session"`
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.brain.Session(chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Status: "success", Session: sess})
	}
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.brain.ClearSession(chi.URLParam(r, "session_id"))
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Session cleared"})
	}
}
