package brain

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the tunables of the conversation pipeline. It is the
// brain: section of the configuration file.
type Config struct {
	// ConfidenceThreshold is the minimum transcription confidence that
	// reaches the model. Lower values get a clarification reply.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	RetrievalTopK int     `yaml:"retrieval_top_k"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`

	LLMTimeout       time.Duration `yaml:"llm_timeout"`
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`

	// RetrievalCacheTTL memoizes identical memory searches. Zero disables
	// the cache.
	RetrievalCacheTTL time.Duration `yaml:"retrieval_cache_ttl"`

	// HistoryLimit caps the turns kept per session.
	HistoryLimit int `yaml:"history_limit"`

	// SessionIdleTTL removes sessions idle for longer. Zero keeps
	// sessions until the process exits.
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	PruneSchedule  string        `yaml:"prune_schedule"`

	Navigation NavigationConfig `yaml:"navigation"`
}

// NavigationConfig is the navigation goal policy.
type NavigationConfig struct {
	RequireLocation bool     `yaml:"require_location"`
	Priority        string   `yaml:"priority"`
	KnownLocations  []string `yaml:"known_locations"`
}

// DefaultConfig returns the values the robot was tuned with. Decoding YAML
// on top of it keeps defaults for omitted keys.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		RetrievalTopK:       5,
		Temperature:         0.5,
		MaxTokens:           512,
		LLMTimeout:          30 * time.Second,
		RetrievalTimeout:    3 * time.Second,
		RetrievalCacheTTL:   30 * time.Second,
		HistoryLimit:        10,
		SessionIdleTTL:      2 * time.Hour,
		PruneSchedule:       "*/10 * * * *",
		Navigation: NavigationConfig{
			RequireLocation: true,
			Priority:        "normal",
		},
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("brain: confidence_threshold must be within [0, 1], got %v", c.ConfidenceThreshold))
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > maxTopK {
		errs = append(errs, fmt.Errorf("brain: retrieval_top_k must be within [1, %d], got %d", maxTopK, c.RetrievalTopK))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("brain: temperature must be within [0, 2], got %v", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, errors.New("brain: max_tokens must be positive"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("brain: llm_timeout must be positive"))
	}
	if c.RetrievalTimeout <= 0 {
		errs = append(errs, errors.New("brain: retrieval_timeout must be positive"))
	}
	if c.RetrievalCacheTTL < 0 {
		errs = append(errs, errors.New("brain: retrieval_cache_ttl must not be negative"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("brain: history_limit must be positive"))
	}
	if c.SessionIdleTTL < 0 {
		errs = append(errs, errors.New("brain: session_idle_ttl must not be negative"))
	}
	if c.SessionIdleTTL > 0 {
		if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("brain: prune_schedule %q: %w", c.PruneSchedule, err))
		}
	}
	if c.Navigation.Priority == "" {
		errs = append(errs, errors.New("brain: navigation.priority is required"))
	}
	return errors.Join(errs...)
}
