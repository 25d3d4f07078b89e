package hc06

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies notifications published by the core.
type EventType uint8

const (
	// EventStateChanged is published on every connection state transition.
	EventStateChanged EventType = iota
	// EventWriteState is published when a property's write state changes.
	EventWriteState
	// EventDisconnected is published when the transport failed or ended
	// without a Close call (e.g. the adapter was unplugged).
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state"
	case EventWriteState:
		return "write"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a notification for UI collaborators. Fields not relevant to
// Type are zero.
type Event struct {
	Type EventType
	Time time.Time

	// EventStateChanged
	From  ConnectionState
	State ConnectionState

	// EventWriteState
	Property   Property
	WriteState WriteState

	// Err is the cause of a failed transition, write or disconnection.
	Err error
}

// ErrNotSubscribed is returned by Unsubscribe for an unknown channel.
var ErrNotSubscribed = errors.New("channel not subscribed")

type subscriber struct {
	mask uint32
	ch   chan<- Event
}

// EventBus fans events out to subscribers. Delivery is non-blocking: a
// subscriber whose channel is full misses the event, so a stalled UI never
// blocks the reader loop. Size channels for bursts (a disconnect publishes
// one state event plus one write event per property).
type EventBus struct {
	mu   sync.RWMutex
	subs []subscriber
	log  *slog.Logger
}

// NewEventBus returns an empty bus. A nil logger selects slog.Default().
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{log: logger}
}

// Subscribe registers ch for the given types, or for all types if none are
// given. The caller owns ch and must drain it.
func (b *EventBus) Subscribe(ch chan<- Event, types ...EventType) {
	var mask uint32
	for _, t := range types {
		mask |= 1 << t
	}
	if len(types) == 0 {
		mask = ^uint32(0)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{mask: mask, ch: ch})
}

// Unsubscribe removes ch. The channel is not closed.
func (b *EventBus) Unsubscribe(ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.ch == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotSubscribed
}

// Publish delivers e to every matching subscriber.
func (b *EventBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.mask&(1<<e.Type) == 0 {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.log.Debug("Dropped event for slow subscriber", "type", e.Type.String())
		}
	}
}
