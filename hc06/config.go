package hc06

import (
	"errors"
	"log/slog"
	"time"

	"i4.energy/across/hc06ctl/at"
)

const (
	// DefaultCommandTimeout bounds the wait for a reply. The device gives no
	// signal when it ignores a command, so without a bound a hung module
	// stalls the caller forever.
	DefaultCommandTimeout = 3 * time.Second
	// DefaultSettleDelay is the pause some HC-06 firmware needs after a
	// command before it answers the next one or accepts a reopened link.
	// Determined empirically; not in the datasheet.
	DefaultSettleDelay = time.Second
	// DefaultDebounceDelay is the quiescence required before a scheduled
	// name or PIN write is sent.
	DefaultDebounceDelay = 500 * time.Millisecond
)

// Config holds Session and Controller tuning.
type Config struct {
	// QuietPeriod ends a response frame. Defaults to at.DefaultQuietPeriod.
	QuietPeriod time.Duration
	// CommandTimeout bounds SendCommand when its context has no deadline.
	// Zero selects DefaultCommandTimeout; a negative value disables it.
	CommandTimeout time.Duration
	// SettleDelay is awaited between a baud or parity change and the reopen.
	SettleDelay time.Duration
	// DebounceDelay applies to ScheduleName and SchedulePIN.
	DebounceDelay time.Duration
	// KeepAlive, when positive, pings the open device at this interval and
	// closes the session if it stops answering.
	KeepAlive time.Duration
	// Responses is the expected-token table.
	Responses at.Responses
	// Logger receives component logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.QuietPeriod < 0 {
		return errors.New("quiet period must not be negative")
	}
	if c.SettleDelay < 0 {
		return errors.New("settle delay must not be negative")
	}
	if c.DebounceDelay < 0 {
		return errors.New("debounce delay must not be negative")
	}
	if c.KeepAlive < 0 {
		return errors.New("keepalive interval must not be negative")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.QuietPeriod == 0 {
		c.QuietPeriod = at.DefaultQuietPeriod
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	c.Responses = c.Responses.WithDefaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with every field at its default.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithQuietPeriod(d time.Duration) *ConfigBuilder {
	b.config.QuietPeriod = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

func (b *ConfigBuilder) WithDebounceDelay(d time.Duration) *ConfigBuilder {
	b.config.DebounceDelay = d
	return b
}

func (b *ConfigBuilder) WithKeepAlive(d time.Duration) *ConfigBuilder {
	b.config.KeepAlive = d
	return b
}

func (b *ConfigBuilder) WithResponses(r at.Responses) *ConfigBuilder {
	b.config.Responses = r
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build validates the configuration and fills unset fields with defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
