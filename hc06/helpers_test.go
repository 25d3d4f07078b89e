package hc06_test

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"i4.energy/across/hc06ctl/hc06"
)

const (
	testQuiet   = 20 * time.Millisecond
	testTimeout = 300 * time.Millisecond
	testSettle  = 5 * time.Millisecond
)

func testConfig(t *testing.T, opts ...func(*hc06.ConfigBuilder)) hc06.Config {
	t.Helper()
	b := hc06.NewConfigBuilder().
		WithQuietPeriod(testQuiet).
		WithCommandTimeout(testTimeout).
		WithSettleDelay(testSettle).
		WithDebounceDelay(30 * time.Millisecond).
		WithLogger(slog.New(slog.DiscardHandler))
	for _, opt := range opts {
		opt(b)
	}
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	return config
}

func newTestSession(t *testing.T, opts ...func(*hc06.ConfigBuilder)) *hc06.Session {
	t.Helper()
	s := hc06.NewSession(testConfig(t, opts...), nil)
	t.Cleanup(func() { s.Close() })
	return s
}

// okDevice answers like a factory HC-06.
func okDevice(cmd string) string {
	switch {
	case cmd == "AT":
		return "OK"
	case cmd == "AT+VERSION":
		return "OKlinvorV1.8"
	case strings.HasPrefix(cmd, "AT+NAME"):
		return "OKsetname"
	case strings.HasPrefix(cmd, "AT+PIN"):
		return "OKsetPIN"
	case strings.HasPrefix(cmd, "AT+BAUD"):
		return "OK" + strings.TrimPrefix(cmd, "AT+BAUD")
	case strings.HasPrefix(cmd, "AT+ROLE="):
		return "OK"
	case cmd == "AT+PN", cmd == "AT+PO", cmd == "AT+PE":
		return "OK " + strings.TrimPrefix(cmd, "AT+")
	}
	return ""
}

// silentOn wraps a responder so the listed commands get no reply.
func silentOn(next func(string) string, cmds ...string) func(string) string {
	return func(cmd string) string {
		if slices.Contains(cmds, cmd) {
			return ""
		}
		return next(cmd)
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitEvent(t *testing.T, ch <-chan hc06.Event, match func(hc06.Event) bool) hc06.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return hc06.Event{}
		}
	}
}

func wrote(tr *hc06.TestTransport, cmd string) func() bool {
	return func() bool {
		return tr != nil && slices.Contains(tr.Writes(), cmd)
	}
}

var link9600 = hc06.LinkParams{BaudRate: 9600, Parity: hc06.ParityNone}
