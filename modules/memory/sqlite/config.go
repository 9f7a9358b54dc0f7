package sqlite

import (
	"errors"
	"time"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultDBFile      = "memory.db"
)

// Config is the memory.sqlite section. An empty section is valid: the
// database then lives in the data directory.
type Config struct {
	Path string `yaml:"path"`

	// WAL lets the gateway read memories while an operator bulk-loads
	// them. Nil means on.
	WAL *bool `yaml:"wal"`

	// BusyTimeout bounds how long a writer waits for the lock.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return errors.New("memory.sqlite: busy_timeout must not be negative")
	}
	return nil
}
