// Package provider defines the language model contract, per-provider health
// tracking with exponential backoff, and the failover chain in front of the
// configured providers.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name     string
	Provider Provider
	Role     Role
	Health   HealthConfig
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger. Without it the chain logs nothing.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithClock injects the time source used by every health tracker.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.now = now }
}

// Chain fails over across providers: primaries in configuration order,
// then fallbacks. Providers that fail with a retryable error are put in
// cooldown and skipped until they recover.
type Chain struct {
	entries []*chainEntry
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	c := &Chain{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	var primaries, fallbacks []*chainEntry
	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		if e.Role == "" {
			e.Role = RolePrimary
		}
		if !e.Role.Valid() {
			return nil, fmt.Errorf("provider: entry %q has unknown role %q", e.Name, e.Role)
		}
		ce := &chainEntry{ChainEntry: e, health: newHealthTracker(e.Health)}
		if c.now != nil {
			ce.health.now = c.now
		}
		ce.health.onStateChange = c.stateLogger(ce)

		if e.Role == RolePrimary {
			primaries = append(primaries, ce)
		} else {
			fallbacks = append(fallbacks, ce)
		}
	}
	c.entries = append(primaries, fallbacks...)
	return c, nil
}

func (c *Chain) stateLogger(e *chainEntry) func(from, to State) {
	return func(from, to State) {
		_, failures, backoff, lastErr := e.health.snapshot()
		switch to {
		case StateCooldown:
			c.logger.Warn("provider entered cooldown",
				"provider", e.Name, "backoff", backoff, "failures", failures, "error", lastErr)
		case StateDead:
			c.logger.Error("provider marked dead",
				"provider", e.Name, "failures", failures, "error", lastErr)
		case StateHealthy:
			c.logger.Info("provider revived", "provider", e.Name, "previous_state", from.String())
		}
	}
}

// Start launches background health probing. Calling Start twice is a no-op.
func (c *Chain) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.probeLoop(ctx, c.checkInterval())
}

// Stop cancels health probing and waits for the probe loop to exit.
func (c *Chain) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Chain) checkInterval() time.Duration {
	interval := c.entries[0].health.cfg.CheckInterval
	for _, e := range c.entries[1:] {
		interval = min(interval, e.health.cfg.CheckInterval)
	}
	return interval
}

func (c *Chain) probeLoop(ctx context.Context, interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}

// Probe health-checks every provider that is dead or whose cooldown has
// expired, reviving those that answer.
func (c *Chain) Probe(ctx context.Context) {
	for _, e := range c.entries {
		if !e.health.needsProbe() {
			continue
		}
		checker, ok := e.Provider.(HealthChecker)
		if !ok {
			continue
		}
		if err := checker.HealthCheck(ctx); err == nil {
			e.health.recordSuccess()
		} else {
			c.logger.Debug("provider probe failed", "provider", e.Name, "error", err)
		}
	}
}

// Complete sends req to the first available provider, failing over on
// retryable errors. Caller cancellation is returned as is and never counts
// against a provider's health.
func (c *Chain) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error
	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		if !e.health.available() {
			continue
		}

		resp, err := e.Provider.Complete(ctx, req)
		if err == nil {
			e.health.recordSuccess()
			return resp, nil
		}
		if ctx.Err() != nil {
			return CompletionResponse{}, ctx.Err()
		}

		lastErr = err
		if !IsRetryable(err) {
			return CompletionResponse{}, err
		}

		e.health.recordFailure(err)
		c.logger.Warn("provider failed, failing over", "provider", e.Name, "error", err)
	}

	if lastErr != nil {
		return CompletionResponse{}, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	return CompletionResponse{}, fmt.Errorf("%w: all providers unavailable", ErrAllProviders)
}

// Available reports whether at least one provider would accept a request
// right now.
func (c *Chain) Available() bool {
	for _, e := range c.entries {
		if e.health.available() {
			return true
		}
	}
	return false
}

// EntryStatus is one provider's line in a health report.
type EntryStatus struct {
	Name      string        `json:"name"`
	Model     string        `json:"model"`
	Role      Role          `json:"role"`
	State     State         `json:"state"`
	Available bool          `json:"available"`
	Failures  int           `json:"failures"`
	Backoff   time.Duration `json:"backoff_ns,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// HealthReport returns the status of every provider in chain order.
func (c *Chain) HealthReport() []EntryStatus {
	out := make([]EntryStatus, 0, len(c.entries))
	for _, e := range c.entries {
		state, failures, backoff, lastErr := e.health.snapshot()
		out = append(out, EntryStatus{
			Name:      e.Name,
			Model:     e.Provider.ModelName(),
			Role:      e.Role,
			State:     state,
			Available: e.health.available(),
			Failures:  failures,
			Backoff:   backoff,
			LastError: lastErr,
		})
	}
	return out
}
