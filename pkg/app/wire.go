package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/robobrain/internal/brain"
	"github.com/flemzord/robobrain/internal/config"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/cron"
	"github.com/flemzord/robobrain/internal/memory"
	"github.com/flemzord/robobrain/internal/provider"
	"github.com/flemzord/robobrain/internal/session"
)

// Service keys shared with the modules that consume them.
const (
	chainService   = "provider.chain"
	memoryService  = "memory.store"
	metricsService = "gateway.metrics"
)

// chainModule runs the provider chain's health probing inside the App
// lifecycle.
type chainModule struct {
	chain *provider.Chain
	ctx   context.Context
}

func (m *chainModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "provider.chain"}
}

func (m *chainModule) Start() error {
	m.chain.Start(m.ctx)
	return nil
}

func (m *chainModule) Stop(context.Context) error {
	m.chain.Stop()
	return nil
}

// schedulerModule lets the cron scheduler participate in the App lifecycle.
type schedulerModule struct {
	*cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron.scheduler"}
}

// wireBrain assembles the orchestrator from whatever the loaded modules
// provided and registers it as brain.ServiceName. Without a provider module
// every turn is degraded; without a memory module an in-memory store is used.
// Must be called after LoadModules and before Start.
func wireBrain(app *core.App, appCtx *core.AppContext, cfg *config.Config, logger *slog.Logger) (*brain.Brain, error) {
	var primary brain.Responder
	entries := provider.EntriesFrom(appCtx).List()
	if len(entries) > 0 {
		chain, err := provider.NewChain(entries, provider.WithLogger(logger.With("component", "provider.chain")))
		if err != nil {
			return nil, fmt.Errorf("building provider chain: %w", err)
		}
		appCtx.RegisterService(chainService, chain)
		app.AppendModule("provider.chain", &chainModule{chain: chain, ctx: context.Background()})
		primary = &brain.PrimaryResponder{LLM: chain}
		logger.Info("provider chain wired", "providers", len(entries))
	} else {
		logger.Warn("no provider module configured, every reply will be degraded")
	}

	store, ok := core.ServiceAs[memory.Store](appCtx, memoryService)
	if !ok {
		store = memory.NewInMemoryStore()
		appCtx.RegisterService(memoryService, store)
		logger.Info("no memory module configured, using in-memory store")
	}
	if ttl := cfg.Brain.RetrievalCacheTTL; ttl > 0 {
		// Every write goes through the brain, so the cache sees it.
		store = memory.NewCachedStore(store, ttl)
	}

	// Optional; the gateway publishes its metrics during Provision.
	observer, _ := core.ServiceAs[brain.Observer](appCtx, metricsService)

	b := brain.New(cfg.Brain, brain.Deps{
		Sessions: session.NewStore(session.WithHistoryLimit(cfg.Brain.HistoryLimit)),
		Memory:   store,
		Primary:  primary,
		Observer: observer,
		Logger:   logger.With("component", "brain"),
	})
	appCtx.RegisterService(brain.ServiceName, b)

	if cfg.Brain.SessionIdleTTL > 0 {
		sched := cron.NewScheduler(logger.With("component", "cron"))
		err := sched.RegisterJob(&cron.SessionPruneJob{
			Sessions:     b,
			ScheduleExpr: cfg.Brain.PruneSchedule,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("registering session pruning: %w", err)
		}
		app.AppendModule("cron.scheduler", &schedulerModule{Scheduler: sched})
	}

	return b, nil
}
