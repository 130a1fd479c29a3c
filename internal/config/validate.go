package config

import "fmt"

// Validate checks the configuration for values the rest of the tool cannot
// work with.
func (c *Config) Validate() error {
	if c.Transport.Baud <= 0 {
		return fmt.Errorf("transport.baud must be positive, got %d", c.Transport.Baud)
	}
	if c.Transport.TimeoutMs < 0 {
		return fmt.Errorf("transport.timeout_ms must not be negative, got %d", c.Transport.TimeoutMs)
	}
	if c.Update.Retries < 1 {
		return fmt.Errorf("update.retries must be at least 1, got %d", c.Update.Retries)
	}
	if c.Update.SettleMs < 0 {
		return fmt.Errorf("update.settle_ms must not be negative, got %d", c.Update.SettleMs)
	}
	if c.Update.PollIntervalMs <= 0 {
		return fmt.Errorf("update.poll_interval_ms must be positive, got %d", c.Update.PollIntervalMs)
	}
	if c.Update.MaxPolls < 1 {
		return fmt.Errorf("update.max_polls must be at least 1, got %d", c.Update.MaxPolls)
	}
	if c.Update.HeaderSize < 0 {
		return fmt.Errorf("update.header_size must not be negative, got %d", c.Update.HeaderSize)
	}
	switch c.Update.Paging {
	case "fixed", "auto":
	default:
		return fmt.Errorf("update.paging must be %q or %q, got %q", "fixed", "auto", c.Update.Paging)
	}
	return nil
}
