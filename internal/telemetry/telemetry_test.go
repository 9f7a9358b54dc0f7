package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "http endpoint", cfg: Config{Endpoint: "http://localhost:4318"}},
		{name: "https with ratio", cfg: Config{Endpoint: "https://otel.example.com", SampleRatio: 0.25}},
		{name: "grpc scheme", cfg: Config{Endpoint: "grpc://localhost:4317"}, wantErr: true},
		{name: "missing host", cfg: Config{Endpoint: "http://"}, wantErr: true},
		{name: "ratio above one", cfg: Config{SampleRatio: 1.5}, wantErr: true},
		{name: "negative ratio", cfg: Config{SampleRatio: -0.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), Config{}, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

// Not parallel: installs the global tracer provider.
func TestSetup_ExportsSpans(t *testing.T) {
	var posts atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		path.Store(r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	shutdown, err := Setup(context.Background(), Config{Endpoint: srv.URL, Insecure: true}, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "brain.ProcessSpeech")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if posts.Load() == 0 {
		t.Fatal("no spans exported")
	}
	if got, _ := path.Load().(string); got != "/v1/traces" {
		t.Errorf("export path = %q, want /v1/traces", got)
	}
}
