package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// authMiddleware guards the operator routes. A request passes with either
// the configured bearer token or the basic credentials; which one it
// presented decides nothing else.
func authMiddleware(cfg AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason, ok := authorized(cfg, r); !ok {
				if logger != nil {
					logger.Warn("operator request rejected",
						"reason", reason,
						"remote_addr", r.RemoteAddr,
						"path", r.URL.Path,
					)
				}
				if cfg.BasicUser != "" {
					w.Header().Set("WWW-Authenticate", `Basic realm="robobrain"`)
				}
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorized(cfg AuthConfig, r *http.Request) (reason string, ok bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "no credentials", false
	}
	if token, isBearer := strings.CutPrefix(header, "Bearer "); isBearer {
		if cfg.BearerToken != "" && secretEqual(token, cfg.BearerToken) {
			return "", true
		}
		return "bad bearer token", false
	}
	if user, pass, isBasic := r.BasicAuth(); isBasic {
		if cfg.BasicUser != "" && cfg.BasicPass != "" &&
			secretEqual(user, cfg.BasicUser) && secretEqual(pass, cfg.BasicPass) {
			return "", true
		}
		return "bad basic credentials", false
	}
	return "unsupported scheme", false
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
