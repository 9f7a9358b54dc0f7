package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)
	r.Use(requestLogger(g.logger))

	// Operational, never authenticated.
	r.Get("/", g.handleRoot())
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	// Robot-facing API.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(g.config.MaxBodyBytes))
		r.Post("/context/update", g.handleContextUpdate())
		r.Post("/speech/input", g.handleSpeechInput())
		r.Post("/memory/insert", g.handleMemoryInsert())
		r.Post("/memory/search", g.handleMemorySearch())
	})
	r.Get("/session/{session_id}", g.handleGetSession())
	r.Delete("/session/{session_id}", g.handleDeleteSession())

	// Bridge WebSocket: robots authenticate with a pairing token.
	if h, ok := g.serviceHandler("bridge.handler"); ok {
		r.Handle("/ws/robot", h)
	}

	// Admin endpoints. Guarded when auth is configured.
	r.Route("/api", func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		r.Get("/sessions", g.handleListSessions())
		r.Get("/modules", g.handleListModules())
	})

	if h, ok := g.serviceHandler("mcp.handler"); ok {
		r.Group(func(r chi.Router) {
			if g.config.Auth.IsConfigured() {
				r.Use(authMiddleware(g.config.Auth, g.logger))
			}
			r.Handle("/mcp", h)
			r.Handle("/mcp/*", h)
		})
	}

	return r
}

func (g *Gateway) serviceHandler(name string) (http.Handler, bool) {
	if g.appCtx == nil {
		return nil, false
	}
	svc, ok := g.appCtx.Service(name)
	if !ok {
		return nil, false
	}
	h, ok := svc.(http.Handler)
	return h, ok
}

// requestLogger logs one line per request. Probe and scrape traffic is
// logged at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelInfo
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
