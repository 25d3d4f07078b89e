package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"i4.energy/across/hc06ctl/debounce"
)

func TestTriggerFiresOnceAfterQuiet(t *testing.T) {
	d := debounce.New(30 * time.Millisecond)

	var calls atomic.Int32
	var last atomic.Value
	for _, v := range []string{"a", "ab", "abc"} {
		v := v
		d.Trigger(func() {
			calls.Add(1)
			last.Store(v)
		})
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
	if got := last.Load(); got != "abc" {
		t.Errorf("expected last action to run, got %v", got)
	}
	if d.Pending() {
		t.Error("expected nothing pending after firing")
	}
}

func TestCancelSuppressesAction(t *testing.T) {
	d := debounce.New(20 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	if !d.Pending() {
		t.Fatal("expected pending action")
	}
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("expected no calls after Cancel, got %d", got)
	}
}

func TestFlushRunsImmediately(t *testing.T) {
	d := debounce.New(time.Hour)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })

	if !d.Flush() {
		t.Fatal("expected Flush to report a pending action")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
	if d.Flush() {
		t.Error("expected second Flush to find nothing")
	}
}
