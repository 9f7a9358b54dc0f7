package openaicompat

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flemzord/robobrain/internal/provider"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// Name identifies the provider in logs and health reports.
	Name      string            `yaml:"name"`
	Role      provider.Role     `yaml:"role"`
	BaseURL   string            `yaml:"base_url"`
	APIKey    string            `yaml:"api_key"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Model     string            `yaml:"model"`
	MaxTokens int               `yaml:"max_tokens"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`

	Health provider.HealthConfig `yaml:"health"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = "openai_compatible"
	}
	if c.Role == "" {
		c.Role = provider.RolePrimary
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// validate returns an error if required fields are missing. The API key is
// optional: self-hosted servers usually run without one.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return errMissingField("base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("provider.openai_compatible: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider.openai_compatible: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("provider.openai_compatible: role must be primary or fallback, got %q", c.Role)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("provider.openai_compatible: max_tokens must not be negative")
	}
	return nil
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("provider.openai_compatible: %s is required", field)
}
