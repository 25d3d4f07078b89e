package hc06_test

import (
	"testing"
	"time"

	"i4.energy/across/hc06ctl/at"
	"i4.energy/across/hc06ctl/hc06"
)

func TestConfigBuilder(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := hc06.NewConfigBuilder().Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.QuietPeriod != at.DefaultQuietPeriod {
			t.Errorf("expected quiet period %s, got %s", at.DefaultQuietPeriod, config.QuietPeriod)
		}
		if config.CommandTimeout != hc06.DefaultCommandTimeout {
			t.Errorf("expected command timeout %s, got %s", hc06.DefaultCommandTimeout, config.CommandTimeout)
		}
		if config.SettleDelay != time.Second {
			t.Errorf("expected settle delay 1s, got %s", config.SettleDelay)
		}
		if config.DebounceDelay != 500*time.Millisecond {
			t.Errorf("expected debounce delay 500ms, got %s", config.DebounceDelay)
		}
		if config.KeepAlive != 0 {
			t.Errorf("expected keepalive disabled, got %s", config.KeepAlive)
		}
		if config.Logger == nil {
			t.Error("expected default logger")
		}
		if !config.Responses.PIN.Accepts("OKSETPIN") {
			t.Error("expected default response table")
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		config, err := hc06.NewConfigBuilder().
			WithQuietPeriod(50 * time.Millisecond).
			WithCommandTimeout(-1).
			WithSettleDelay(2 * time.Second).
			WithKeepAlive(10 * time.Second).
			WithResponses(at.Responses{Name: at.Match{Prefix: "OK"}}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.QuietPeriod != 50*time.Millisecond || config.SettleDelay != 2*time.Second {
			t.Errorf("overrides not applied: %+v", config)
		}
		if config.CommandTimeout >= 0 {
			t.Errorf("expected disabled command timeout to stay negative, got %s", config.CommandTimeout)
		}
		if !config.Responses.Name.Accepts("OK") {
			t.Error("expected overridden name expectation")
		}
		if config.Responses.PIN.IsZero() {
			t.Error("expected unset entries to keep defaults")
		}
	})

	t.Run("Negative durations rejected", func(t *testing.T) {
		builders := map[string]*hc06.ConfigBuilder{
			"quiet":     hc06.NewConfigBuilder().WithQuietPeriod(-time.Second),
			"settle":    hc06.NewConfigBuilder().WithSettleDelay(-time.Second),
			"debounce":  hc06.NewConfigBuilder().WithDebounceDelay(-time.Second),
			"keepalive": hc06.NewConfigBuilder().WithKeepAlive(-time.Second),
		}
		for name, b := range builders {
			if _, err := b.Build(); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
	})
}
