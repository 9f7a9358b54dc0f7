package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/provider"
	"github.com/flemzord/robobrain/internal/session"
	"gopkg.in/yaml.v3"
)

type testEnv struct {
	gw      *Gateway
	handler http.Handler
	appCtx  *core.AppContext
}

type envOption func(*testEnv, *brain.Deps)

func withProvider(p provider.Provider) envOption {
	return func(e *testEnv, d *brain.Deps) {
		chain, err := provider.NewChain([]provider.ChainEntry{{Name: "mock", Provider: p, Role: provider.RolePrimary}})
		if err != nil {
			panic(err)
		}
		e.appCtx.RegisterService("provider.chain", chain)
		d.Primary = &brain.PrimaryResponder{LLM: chain}
	}
}

func withMemory(s memory.Store) envOption {
	return func(_ *testEnv, d *brain.Deps) { d.Memory = s }
}

func withConfig(yml string) envOption {
	return func(e *testEnv, _ *brain.Deps) {
		if err := e.gw.Configure(mustYAMLNode(nil, yml)); err != nil {
			panic(err)
		}
	}
}

// newTestEnv provisions a gateway around a real brain and returns its
// router without opening a listener.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &testEnv{gw: &Gateway{}, appCtx: core.NewAppContext(logger, t.TempDir())}

	if err := e.gw.Provision(e.appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	deps := brain.Deps{Sessions: session.NewStore(), Logger: logger, Observer: e.gw.metrics}
	for _, opt := range opts {
		opt(e, &deps)
	}
	e.appCtx.RegisterService(brain.ServiceName, brain.New(brain.DefaultConfig(), deps))

	if err := e.gw.resolve(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e.handler = e.gw.buildRouter()
	return e
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func newJSONRequest(ctx context.Context, method, path, body string) *http.Request {
	req := httptest.NewRequestWithContext(ctx, method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		if t != nil {
			t.Fatalf("yaml: %v", err)
		}
		panic(err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	return doc.Content[0]
}
