package anthropic

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/flemzord/robobrain/internal/provider"
)

// defaultModel is pinned to a dated release for reproducibility.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultEnvKey is read when neither api_key nor api_key_env is set.
const defaultEnvKey = "ANTHROPIC_API_KEY"

// Config holds the YAML-decoded configuration for the Anthropic provider.
type Config struct {
	Name      string        `yaml:"name"`
	Role      provider.Role `yaml:"role"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`

	// Timeout bounds each HTTP exchange with the API.
	Timeout time.Duration `yaml:"timeout"`

	Health provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "anthropic"
	}
	// Hosted models usually back up a local primary.
	if c.Role == "" {
		c.Role = provider.RoleFallback
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.APIKey == "" {
		env := c.APIKeyEnv
		if env == "" {
			env = defaultEnvKey
		}
		c.APIKey = os.Getenv(env)
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("provider.anthropic: api_key (or its environment variable) is required"))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("provider.anthropic: base_url %q must be an http(s) URL", c.BaseURL))
		}
	}
	if !c.Role.Valid() {
		errs = append(errs, fmt.Errorf("provider.anthropic: role must be primary or fallback, got %q", c.Role))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("provider.anthropic: max_tokens must not be negative"))
	}
	return errors.Join(errs...)
}
