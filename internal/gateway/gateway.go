// Package gateway serves the robot brain over HTTP: the conversation and
// memory API used by the robot, health and Prometheus metrics for the
// operator, and mount points for the robot bridge and the MCP server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// MetricsService is the AppContext key of the gateway's *Metrics.
const MetricsService = "gateway.metrics"

// Gateway is the HTTP gateway module. It is a leaf module; nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	startedAt time.Time
	version   string

	// Resolved at Start() via the service registry.
	brain *brain.Brain
	chain *provider.Chain
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The metrics registry is published
// early so the brain can report into it.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	ctx.RegisterService(MetricsService, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds the services the routes depend on. The brain is required;
// the provider chain is optional.
func (g *Gateway) resolve() error {
	b, ok := core.ServiceAs[*brain.Brain](g.appCtx, brain.ServiceName)
	if !ok {
		return fmt.Errorf("gateway: service %q not registered", brain.ServiceName)
	}
	g.brain = b

	if chain, ok := core.ServiceAs[*provider.Chain](g.appCtx, "provider.chain"); ok {
		g.chain = chain
	}
	g.version = "dev"
	if v, ok := core.ServiceAs[string](g.appCtx, "app.version"); ok && v != "" {
		g.version = v
	}
	g.startedAt = time.Now()

	g.metrics.registerGaugeFunc("robobrain_sessions_active", "Number of live conversation sessions.", func() float64 {
		return float64(g.brain.SessionCount())
	})
	if g.chain != nil {
		g.metrics.registerGaugeFunc("robobrain_providers_available", "Number of language model providers accepting requests.", func() float64 {
			n := 0
			for _, s := range g.chain.HealthReport() {
				if s.Available {
					n++
				}
			}
			return float64(n)
		})
	}
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Registry exposes the Prometheus registry for collectors owned by other
// modules.
func (g *Gateway) Registry() *prometheus.Registry {
	return g.metrics.registry
}
