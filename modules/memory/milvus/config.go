package milvus

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds the Milvus memory module configuration.
type Config struct {
	// Endpoint is the Milvus REST address, e.g. http://localhost:19530.
	Endpoint   string `yaml:"endpoint"`
	Token      string `yaml:"token"`
	TokenEnv   string `yaml:"token_env"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	// Nprobe is the IVF search breadth.
	Nprobe  int           `yaml:"nprobe"`
	Timeout time.Duration `yaml:"timeout"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig points at an OpenAI-compatible /embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "http://localhost:19530"
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Collection == "" {
		c.Collection = "robot_memory"
	}
	if c.Nprobe == 0 {
		c.Nprobe = 10
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Token == "" && c.TokenEnv != "" {
		c.Token = os.Getenv(c.TokenEnv)
	}

	e := &c.Embedding
	e.BaseURL = strings.TrimRight(e.BaseURL, "/")
	if e.Model == "" {
		e.Model = "bge-m3"
	}
	if e.Dimension == 0 {
		e.Dimension = 1024
	}
	if e.APIKey == "" && e.APIKeyEnv != "" {
		e.APIKey = os.Getenv(e.APIKeyEnv)
	}
}

func (c *Config) validate() error {
	if err := validURL("endpoint", c.Endpoint); err != nil {
		return err
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("memory.milvus: embedding.base_url is required")
	}
	if err := validURL("embedding.base_url", c.Embedding.BaseURL); err != nil {
		return err
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("memory.milvus: embedding.dimension must be positive")
	}
	if c.Nprobe < 0 {
		return fmt.Errorf("memory.milvus: nprobe must be positive")
	}
	return nil
}

func validURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("memory.milvus: %s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("memory.milvus: %s scheme must be http or https, got %q", field, u.Scheme)
	}
	return nil
}
