package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	cfg := AuthConfig{BearerToken: "robot-admin", BasicUser: "ops", BasicPass: "hunter2"}

	tests := []struct {
		name  string
		setup func(*http.Request)
		want  int
	}{
		{"no header", func(*http.Request) {}, http.StatusUnauthorized},
		{"valid bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer robot-admin") }, http.StatusOK},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"valid basic", func(r *http.Request) { r.SetBasicAuth("ops", "hunter2") }, http.StatusOK},
		{"wrong basic", func(r *http.Request) { r.SetBasicAuth("ops", "guess") }, http.StatusUnauthorized},
		{"unknown scheme", func(r *http.Request) { r.Header.Set("Authorization", "Digest x") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			authMiddleware(cfg, nil)(ok).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestAuthConfig_IsConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  AuthConfig
		want bool
	}{
		{"empty", AuthConfig{}, false},
		{"bearer", AuthConfig{BearerToken: "tok"}, true},
		{"basic", AuthConfig{BasicUser: "u", BasicPass: "p"}, true},
		{"user without password", AuthConfig{BasicUser: "u"}, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.IsConfigured(); got != tt.want {
			t.Errorf("%s: IsConfigured() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
