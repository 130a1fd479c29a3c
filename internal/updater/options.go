package updater

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/transfer"
)

// Config holds the updater configuration.
type Config struct {
	// Params is the CDB channel geometry.
	Params cdb.Params

	// Retries is the number of attempts per command.
	Retries int

	// SettleDelay is the pause between arming a command and the first
	// status read.
	SettleDelay time.Duration

	// PollInterval is the delay between status reads while busy.
	PollInterval time.Duration

	// MaxPolls caps status reads per command before a busy timeout.
	MaxPolls int

	// Password unlocks the privileged command set.
	Password uint32

	// Paging is the preferred EPL staging strategy. AutoPaging falls back
	// to FixedPaging when the device advertises no write granularity.
	Paging transfer.Paging

	// ForceInline transfers the whole image through LPL writes even when
	// the device supports EPL.
	ForceInline bool

	// Progress, if set, is called after each successful chunk write with
	// the bytes written so far and the total payload size.
	Progress func(written, total int)

	// Logger receives structured protocol logging. Discarded by default.
	Logger zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		Params:       cdb.DefaultParams(),
		Retries:      3,
		SettleDelay:  2 * time.Second,
		PollInterval: time.Second,
		MaxPolls:     10,
		Password:     cdb.DefaultPassword,
		Paging:       transfer.FixedPaging,
		Logger:       zerolog.Nop(),
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithParams overrides the CDB channel geometry.
func WithParams(p cdb.Params) Option {
	return func(c *Config) { c.Params = p }
}

// WithRetries sets the number of attempts per command.
func WithRetries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Retries = n
		}
	}
}

// WithSettleDelay sets the pause between arming a command and polling.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithPollInterval sets the delay between busy-status reads.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithMaxPolls caps the number of status reads per command.
func WithMaxPolls(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPolls = n
		}
	}
}

// WithPassword sets the CDB password.
func WithPassword(pw uint32) Option {
	return func(c *Config) { c.Password = pw }
}

// WithPaging sets the preferred EPL staging strategy.
func WithPaging(p transfer.Paging) Option {
	return func(c *Config) { c.Paging = p }
}

// WithInlineTransfer forces LPL-only transfers.
func WithInlineTransfer() Option {
	return func(c *Config) { c.ForceInline = true }
}

// WithProgress sets a callback reporting download progress.
func WithProgress(fn func(written, total int)) Option {
	return func(c *Config) { c.Progress = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
