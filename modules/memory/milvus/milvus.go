// Package milvus implements a vector memory backend on Milvus, reached
// through its RESTful v2 API. Text is embedded by an OpenAI-compatible
// embeddings endpoint and searched by inner product on unit vectors.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/memory"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ memory.Store      = (*Module)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
)

// Module is a Milvus-backed memory.Store, registered as "memory.store".
type Module struct {
	config Config
	logger *slog.Logger
	rest   *restClient
	embed  *embedder
	now    func() time.Time
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.milvus",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("memory.milvus: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.now = time.Now

	client := &http.Client{Timeout: m.config.Timeout}
	m.rest = &restClient{
		endpoint: m.config.Endpoint,
		token:    m.config.Token,
		database: m.config.Database,
		client:   client,
	}
	m.embed = &embedder{cfg: m.config.Embedding, client: client}

	ctx.RegisterService("memory.store", m)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start ensures the collection exists. An unreachable Milvus is logged, not
// fatal: retrieval failures already degrade to "no memories".
func (m *Module) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	if err := m.ensureCollection(ctx); err != nil {
		m.logger.Warn("milvus collection not ready", "collection", m.config.Collection, "error", err)
		return nil
	}
	m.logger.Info("milvus memory ready", "endpoint", m.config.Endpoint, "collection", m.config.Collection)
	return nil
}

func (m *Module) ensureCollection(ctx context.Context) error {
	ok, err := m.rest.hasCollection(ctx, m.config.Collection)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	m.logger.Info("creating milvus collection", "collection", m.config.Collection, "dim", m.config.Embedding.Dimension)
	return m.rest.createCollection(ctx, m.config.Collection, m.config.Embedding.Dimension)
}

// Insert implements memory.Writer.
func (m *Module) Insert(ctx context.Context, rec memory.Record) (memory.Record, error) {
	rec, err := memory.Prepare(rec, m.now())
	if err != nil {
		return memory.Record{}, err
	}
	vec, err := m.embed.Embed(ctx, rec.Text)
	if err != nil {
		return memory.Record{}, fmt.Errorf("memory.milvus: %w", err)
	}
	err = m.rest.upsert(ctx, m.config.Collection, entity{
		ID:         rec.ID,
		Embedding:  vec,
		Text:       rec.Text,
		MemoryType: rec.MemoryType,
		StudentID:  rec.StudentID,
		Timestamp:  rec.Timestamp,
	})
	if err != nil {
		return memory.Record{}, err
	}
	m.logger.Debug("memory inserted", "type", rec.MemoryType, "student_id", rec.StudentID)
	return rec, nil
}

// Search implements memory.Retriever.
func (m *Module) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error) {
	vec, err := m.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory.milvus: %w", err)
	}
	hits, err := m.rest.search(ctx, m.config.Collection, vec,
		buildFilter(opts.MemoryType, opts.StudentID), opts.Limit(), m.config.Nprobe)
	if err != nil {
		return nil, err
	}

	out := make([]memory.Record, 0, len(hits))
	for _, h := range hits {
		out = append(out, memory.Record{
			ID:         h.ID,
			Text:       h.Text,
			MemoryType: h.MemoryType,
			StudentID:  h.StudentID,
			Timestamp:  h.Timestamp,
			Score:      h.Distance,
		})
	}
	return out, nil
}

// Delete implements memory.Store.
func (m *Module) Delete(ctx context.Context, id string) error {
	n, err := m.rest.deleteByID(ctx, m.config.Collection, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return memory.ErrRecordNotFound
	}
	return nil
}

// Len implements memory.Store. Errors are logged and reported as zero.
func (m *Module) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()
	n, err := m.rest.count(ctx, m.config.Collection)
	if err != nil {
		m.logger.Error("milvus: count failed", "error", err)
		return 0
	}
	return n
}
