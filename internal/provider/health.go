package provider

import (
	"sync"
	"time"
)

// State is the availability of a provider as seen by the chain.
type State int

// Health states.
const (
	StateHealthy  State = iota
	StateCooldown       // transient failure, backing off
	StateDead           // too many consecutive failures; probes only
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateCooldown:
		return "cooldown"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText lets states render by name in JSON reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HealthConfig controls health tracking. Zero values take defaults.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure. Default 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff. Default 60s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures is the number of consecutive failures before the
	// provider is marked dead. Default 5.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is how often unhealthy providers are probed. Default 10s.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 10 * time.Second
	}
}

// healthTracker follows one provider: exponential backoff on failure, dead
// after MaxFailures in a row, healthy again on any success.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange is called outside the lock on every transition.
	onStateChange func(from, to State)

	mu              sync.Mutex
	state           State
	failures        int
	backoff         time.Duration
	cooldownExpires time.Time
	lastError       string

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{cfg: cfg, now: time.Now}
}

// available reports whether requests may be sent. A cooldown ends once its
// backoff has elapsed.
func (h *healthTracker) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.availableLocked()
}

func (h *healthTracker) availableLocked() bool {
	switch h.state {
	case StateHealthy:
		return true
	case StateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

// needsProbe is true for dead providers and for expired cooldowns.
func (h *healthTracker) needsProbe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateDead:
		return true
	case StateCooldown:
		return !h.now().Before(h.cooldownExpires)
	default:
		return false
	}
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = StateHealthy
	h.failures = 0
	h.backoff = 0
	h.lastError = ""
	h.mu.Unlock()

	h.notify(prev, StateHealthy)
}

func (h *healthTracker) recordFailure(err error) {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if err != nil {
		h.lastError = err.Error()
	}

	if h.failures >= h.cfg.MaxFailures {
		h.state = StateDead
	} else {
		h.state = StateCooldown
		h.backoff = min(max(h.backoff*2, h.cfg.InitialBackoff), h.cfg.MaxBackoff)
		h.cooldownExpires = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
}

func (h *healthTracker) notify(from, to State) {
	if from != to && h.onStateChange != nil {
		h.onStateChange(from, to)
	}
}

// snapshot returns state, failure count, backoff and last error together.
func (h *healthTracker) snapshot() (State, int, time.Duration, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures, h.backoff, h.lastError
}
