// Package mcpserver exposes the robot's memory and conversation context to
// external agent tooling over the Model Context Protocol.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/session"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// HandlerService is the AppContext key of the streamable HTTP handler.
const HandlerService = "mcp.handler"

// Backend is the part of the brain the tools operate on.
type Backend interface {
	SearchMemory(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error)
	InsertMemory(ctx context.Context, rec memory.Record) (memory.Record, error)
	Session(id string) (session.Session, error)
	UpdateContext(u brain.ContextUpdate) (session.Session, error)
}

// Config holds the YAML configuration of the MCP module.
type Config struct {
	// Name is advertised to clients during initialization.
	Name string `yaml:"name"`

	// ReadOnly hides the tools that write memories or context.
	ReadOnly bool `yaml:"read_only"`
}

// Module serves the MCP tools. The HTTP handler is registered at Provision
// and answers once Start has resolved the brain.
type Module struct {
	config  Config
	appCtx  *core.AppContext
	logger  *slog.Logger
	backend Backend
	mcp     *server.MCPServer
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "mcp.server",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.config.Name == "" {
		m.config.Name = "robobrain"
	}
	m.appCtx = ctx
	m.logger = ctx.Logger

	version, _ := core.ServiceAs[string](ctx, "app.version")
	if version == "" {
		version = "dev"
	}
	m.mcp = newServer(m.config.Name, version, m, m.config.ReadOnly)

	ctx.RegisterService(HandlerService, http.Handler(server.NewStreamableHTTPServer(m.mcp,
		server.WithStateLess(true),
	)))
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if m.backend != nil {
		return nil
	}
	b, ok := core.ServiceAs[*brain.Brain](m.appCtx, brain.ServiceName)
	if !ok {
		return errors.New("mcp: brain service not registered")
	}
	m.backend = b
	m.logger.Info("mcp server started", "tools", len(m.mcp.ListTools()), "read_only", m.config.ReadOnly)
	return nil
}

// Server returns the underlying MCP server.
func (m *Module) Server() *server.MCPServer {
	return m.mcp
}

var errNotStarted = errors.New("mcp: brain not available yet")

// The Module forwards to the resolved backend so tools can be registered
// before Start.

func (m *Module) SearchMemory(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Record, error) {
	if m.backend == nil {
		return nil, errNotStarted
	}
	return m.backend.SearchMemory(ctx, query, opts)
}

func (m *Module) InsertMemory(ctx context.Context, rec memory.Record) (memory.Record, error) {
	if m.backend == nil {
		return memory.Record{}, errNotStarted
	}
	return m.backend.InsertMemory(ctx, rec)
}

func (m *Module) Session(id string) (session.Session, error) {
	if m.backend == nil {
		return session.Session{}, errNotStarted
	}
	return m.backend.Session(id)
}

func (m *Module) UpdateContext(u brain.ContextUpdate) (session.Session, error) {
	if m.backend == nil {
		return session.Session{}, errNotStarted
	}
	return m.backend.UpdateContext(u)
}
