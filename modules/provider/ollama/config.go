package ollama

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flemzord/robobrain/internal/provider"
)

// Config holds the configuration for an Ollama provider.
type Config struct {
	Name    string        `yaml:"name"`
	Role    provider.Role `yaml:"role"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`

	// MaxTokens maps to options.num_predict when a request sets none.
	MaxTokens int           `yaml:"max_tokens"`
	KeepAlive string        `yaml:"keep_alive"`
	Timeout   time.Duration `yaml:"timeout"`

	Health provider.HealthConfig `yaml:"health"`
}

func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "ollama"
	}
	if c.Role == "" {
		c.Role = provider.RolePrimary
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.ollama: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.ollama: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return fmt.Errorf("provider.ollama: model is required")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("provider.ollama: role must be primary or fallback, got %q", c.Role)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.ollama: max_tokens must not be negative")
	}
	return nil
}
