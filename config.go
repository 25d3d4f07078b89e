package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"i4.energy/across/hc06ctl/at"
	"i4.energy/across/hc06ctl/hc06"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the bridge listens on (e.g. "127.0.0.1:8080")
	BindAddress string `mapstructure:"bind_address"`
	// SerialPort is the port the HC-06 adapter is on. Empty selects the first
	// USB serial port.
	SerialPort string `mapstructure:"serial_port"`
	// SettingsPath is the JSON file holding the last confirmed device settings
	SettingsPath string `mapstructure:"settings_path"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `mapstructure:"log_level"`
	// LogFile, if set, sends logs to a rotated file instead of stderr
	LogFile string `mapstructure:"log_file"`
	// CommandTimeout bounds the wait for a device reply
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// SettleDelay is the pause the device needs between some commands
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// QuietPeriod ends a response frame
	QuietPeriod time.Duration `mapstructure:"quiet_period"`
	// DebounceDelay applies to name and PIN edits from the bridge
	DebounceDelay time.Duration `mapstructure:"debounce_delay"`
	// KeepAlive pings the open device at this interval; zero disables it
	KeepAlive time.Duration `mapstructure:"keepalive"`
	// Responses overrides expected replies for firmware that differs from
	// the common HC-06 revisions. Only settable from a config file.
	Responses at.Responses `mapstructure:"responses"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "127.0.0.1:8080"
		c.SettingsPath = defaultSettingsPath()
		c.LogLevel = "info"
		c.CommandTimeout = hc06.DefaultCommandTimeout
		c.SettleDelay = hc06.DefaultSettleDelay
		c.QuietPeriod = at.DefaultQuietPeriod
		c.DebounceDelay = hc06.DefaultDebounceDelay
		return nil
	}
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "hc06-settings.json"
	}
	return filepath.Join(dir, "hc06ctl", "settings.json")
}

// WithFile overlays values from a YAML, JSON or TOML file. Keys absent from
// the file keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("decode config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("HC06_BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if port := os.Getenv("HC06_SERIAL_PORT"); port != "" {
			c.SerialPort = port
		}

		if path := os.Getenv("HC06_SETTINGS"); path != "" {
			c.SettingsPath = path
		}

		if level := os.Getenv("HC06_LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if file := os.Getenv("HC06_LOG_FILE"); file != "" {
			c.LogFile = file
		}

		durations := map[string]*time.Duration{
			"HC06_COMMAND_TIMEOUT": &c.CommandTimeout,
			"HC06_SETTLE_DELAY":    &c.SettleDelay,
			"HC06_KEEPALIVE":       &c.KeepAlive,
		}
		for name, dst := range durations {
			if s := os.Getenv(name); s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				*dst = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		duration := func(dst *time.Duration, f *pflag.Flag) {
			d, perr := time.ParseDuration(f.Value.String())
			if perr != nil {
				err = fmt.Errorf("--%s: %w", f.Name, perr)
				return
			}
			*dst = d
		}

		fSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "port":
				c.SerialPort = f.Value.String()
			case "settings":
				c.SettingsPath = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "log-file":
				c.LogFile = f.Value.String()
			case "command-timeout":
				duration(&c.CommandTimeout, f)
			case "settle-delay":
				duration(&c.SettleDelay, f)
			case "keepalive":
				duration(&c.KeepAlive, f)
			}
		})
		return err
	}
}

// CoreConfig builds the library configuration.
func (c *Config) CoreConfig() *hc06.ConfigBuilder {
	return hc06.NewConfigBuilder().
		WithCommandTimeout(c.CommandTimeout).
		WithSettleDelay(c.SettleDelay).
		WithQuietPeriod(c.QuietPeriod).
		WithDebounceDelay(c.DebounceDelay).
		WithKeepAlive(c.KeepAlive).
		WithResponses(c.Responses)
}
