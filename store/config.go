package store

import (
	"log/slog"
	"time"
)

// Config holds configuration for the Store.
type Config struct {
	// HardDelete removes items on Destroy.
	// When false, Destroy sets the ttl attribute to now and DynamoDB expires
	// the item later; reads treat it as deleted immediately.
	// Default: false
	HardDelete bool

	// Logger receives debug output for writes.
	// Default: slog.Default()
	Logger *slog.Logger

	// Now returns the current time used for timestamps and TTL checks.
	// Default: time.Now
	Now func() time.Time
}

// DefaultConfig returns soft-delete defaults.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// validate fills unset fields with defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
