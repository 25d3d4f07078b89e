package hc06

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"i4.energy/across/hc06ctl/at"
)

// State machine events.
const (
	evOpen       = "open"
	evVerify     = "verify"
	evFail       = "fail"
	evClose      = "close"
	evDisconnect = "disconnect"
)

// readChunk is the size of a single transport read. HC-06 replies are a
// few dozen bytes at most.
const readChunk = 256

// Session owns the transport to one HC-06 and the single request that may
// be in flight on it. All transport reads happen on the reader goroutine
// started by Open; responses are framed by inactivity and handed to the
// pending request.
//
// Usage:
//
//	cfg, _ := hc06.NewConfigBuilder().Build()
//	s := hc06.NewSession(cfg, nil)
//	if err := s.Open(ctx, dialer, hc06.LinkParams{BaudRate: 9600, Parity: hc06.ParityNone}); err != nil {
//		return err
//	}
//	defer s.Close()
//	version, err := s.Version(ctx)
type Session struct {
	config Config
	log    *slog.Logger
	bus    *EventBus
	state  *fsm.FSM
	corr   *correlator
	framer *at.Framer

	// life serializes Open, Close and Reopen.
	life sync.Mutex

	// mu guards the fields below.
	mu         sync.Mutex
	transport  Transport
	dialer     Dialer
	identity   PortIdentity
	params     LinkParams
	readerDone chan struct{}
	onClose    []func(cause error)
	// closes counts detaches, so an Open can tell it was interrupted.
	closes uint64
}

// NewSession returns a closed Session. A nil bus gets a private one.
func NewSession(config Config, bus *EventBus) *Session {
	config.setDefaults()
	log := config.Logger.With("component", "session")
	if bus == nil {
		bus = NewEventBus(config.Logger)
	}

	s := &Session{
		config: config,
		log:    log,
		bus:    bus,
		corr:   newCorrelator(log),
	}
	s.framer = at.NewFramer(config.QuietPeriod, s.corr.resolve)
	s.state = fsm.NewFSM(
		string(StateClosed),
		fsm.Events{
			{Name: evOpen, Src: []string{string(StateClosed), string(StateOpenError)}, Dst: string(StateOpening)},
			{Name: evVerify, Src: []string{string(StateOpening)}, Dst: string(StateOpen)},
			{Name: evFail, Src: []string{string(StateOpening)}, Dst: string(StateOpenError)},
			{Name: evClose, Src: []string{string(StateOpening), string(StateOpen), string(StateOpenError)}, Dst: string(StateClosed)},
			{Name: evDisconnect, Src: []string{string(StateOpening), string(StateOpen), string(StateOpenError)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": s.onEnterState,
		},
	)
	return s
}

// Events returns the bus state and disconnect notifications go to.
func (s *Session) Events() *EventBus {
	return s.bus
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.config
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	return ConnectionState(s.state.Current())
}

// IsOpen reports whether the device answered the ping after the last Open.
func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

// Identity returns the USB identity of the last opened port.
func (s *Session) Identity() PortIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Params returns the link parameters of the last Open.
func (s *Session) Params() LinkParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Dialer returns the dialer of the last Open, or nil.
func (s *Session) Dialer() Dialer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialer
}

// OnClose registers fn to run after every transition to closed, whether by
// Close or by disconnection. cause is nil for Close.
func (s *Session) OnClose(fn func(cause error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Open dials the port with params, starts the reader and pings the device.
// If the device does not answer, the transport stays held and the state is
// open-error; Close releases it. A Close issued while Open is in progress
// interrupts it and Open returns an error matching ErrPortClosed.
func (s *Session) Open(ctx context.Context, dialer Dialer, params LinkParams) error {
	if dialer == nil {
		return ErrNoDialer
	}
	gen := s.closeGen()
	s.life.Lock()
	defer s.life.Unlock()
	return s.open(ctx, dialer, params, gen)
}

// Close releases the transport. A pending command fails with ErrPortClosed,
// including the verification ping of an Open in progress. Closing a closed
// Session is a no-op. The state becomes closed even if the transport
// reports an error on close.
func (s *Session) Close() error {
	err := s.detach()
	s.life.Lock()
	defer s.life.Unlock()
	return s.close(err)
}

// Reopen closes the transport if held and opens it again with params. A nil
// dialer reuses the dialer of the last Open.
func (s *Session) Reopen(ctx context.Context, dialer Dialer, params LinkParams) error {
	s.life.Lock()
	defer s.life.Unlock()

	if dialer == nil {
		dialer = s.Dialer()
	}
	if dialer == nil {
		return ErrNoPort
	}
	if err := s.close(s.detach()); err != nil {
		s.log.Warn("Close before reopen failed", "error", err)
	}
	return s.open(ctx, dialer, params, s.closeGen())
}

// closeGen returns the number of detaches so far. open compares it to learn
// whether a Close arrived while it was running.
func (s *Session) closeGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Session) open(ctx context.Context, dialer Dialer, params LinkParams, gen uint64) error {
	s.mu.Lock()
	held := s.transport != nil
	s.mu.Unlock()
	if held {
		return ErrAlreadyOpen
	}
	s.waitReader()

	if err := s.fire(ctx, evOpen, nil); err != nil {
		return err
	}

	log := s.log.With("port", dialer.Name())
	log.Info("Opening port", "baud", int(params.BaudRate), "parity", string(params.Parity))

	t, err := dialer.Dial(ctx, params)
	if err != nil {
		err = fmt.Errorf("open %s: %w: %w", dialer.Name(), ErrTransport, err)
		s.fire(ctx, evFail, err)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closes != gen {
		s.mu.Unlock()
		if cerr := t.Close(); cerr != nil {
			log.Debug("Close of interrupted open failed", "error", cerr)
		}
		s.close(nil)
		return fmt.Errorf("open %s: %w", dialer.Name(), ErrPortClosed)
	}
	s.transport = t
	s.dialer = dialer
	s.identity = dialer.Identity()
	s.params = params
	s.readerDone = done
	s.mu.Unlock()

	go s.readLoop(t, done)

	ok, err := s.Ping(ctx)
	if errors.Is(err, ErrPortClosed) {
		// Close or a disconnection took the transport; whichever did it
		// owns the transition to closed unless it was a Close waiting on us.
		if s.closeGen() != gen {
			s.close(nil)
		}
		return fmt.Errorf("open %s: %w", dialer.Name(), err)
	}
	if err == nil && !ok {
		err = errors.New("unexpected ping response")
	}
	if err != nil {
		err = fmt.Errorf("ping %s: %w: %w", dialer.Name(), ErrDeviceUnresponsive, err)
		s.fire(ctx, evFail, err)
		return err
	}

	if s.closeGen() != gen {
		s.close(nil)
		return fmt.Errorf("open %s: %w", dialer.Name(), ErrPortClosed)
	}
	if err := s.fire(ctx, evVerify, nil); err != nil {
		// Disconnected between the ping reply and now.
		return err
	}
	log.Info("Device connected", "identity", s.Identity().String())
	return nil
}

// detach takes the transport from the session, fails the pending command
// with ErrPortClosed and closes the transport so the reader exits. It does
// not take the life lock, which lets Close interrupt an Open waiting on the
// device.
func (s *Session) detach() error {
	s.mu.Lock()
	s.closes++
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	s.corr.reject(ErrPortClosed)
	s.framer.Reset()
	if err := t.Close(); err != nil {
		return fmt.Errorf("close port: %w: %w", ErrTransport, err)
	}
	return nil
}

// close finishes a detach: it waits for the reader and moves to closed.
// closeErr is the detach result and is returned unchanged.
func (s *Session) close(closeErr error) error {
	s.waitReader()

	if s.State() == StateClosed {
		return closeErr
	}
	s.fire(context.Background(), evClose, nil)
	s.log.Info("Port closed")
	s.runCloseHooks(nil)
	return closeErr
}

// waitReader blocks until the reader of the previous transport has exited.
func (s *Session) waitReader() {
	s.mu.Lock()
	done := s.readerDone
	s.mu.Unlock()
	if done == nil {
		return
	}
	<-done

	s.mu.Lock()
	if s.readerDone == done {
		s.readerDone = nil
	}
	s.mu.Unlock()
}

func (s *Session) readLoop(t Transport, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readChunk)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			s.framer.Feed(buf[:n])
		}
		if err != nil {
			s.readFailed(t, err)
			return
		}
	}
}

// readFailed tears the session down after the transport failed under it.
// Nothing happens if Close already released t.
func (s *Session) readFailed(t Transport, cause error) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.mu.Unlock()

	s.log.Warn("Port disconnected", "error", cause)
	s.corr.reject(fmt.Errorf("%w: %w", ErrPortClosed, cause))
	s.framer.Reset()
	if err := t.Close(); err != nil {
		s.log.Debug("Close after disconnect failed", "error", err)
	}

	s.fire(context.Background(), evDisconnect, cause)
	s.bus.Publish(Event{Type: EventDisconnected, State: StateClosed, Err: cause})
	s.runCloseHooks(cause)
}

func (s *Session) runCloseHooks(cause error) {
	s.mu.Lock()
	hooks := append([]func(error){}, s.onClose...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(cause)
	}
}

// fire triggers a state machine event. cause travels to subscribers with the
// resulting EventStateChanged. The transition runs even if ctx is done, so a
// timed out Open still lands in open-error.
func (s *Session) fire(ctx context.Context, event string, cause error) error {
	err := s.state.Event(context.WithoutCancel(ctx), event, cause)
	if err != nil {
		s.log.Debug("State transition rejected", "event", event, "state", s.state.Current(), "error", err)
	}
	return err
}

func (s *Session) onEnterState(_ context.Context, e *fsm.Event) {
	var cause error
	if len(e.Args) > 0 {
		cause, _ = e.Args[0].(error)
	}
	s.log.Debug("State transition", "event", e.Event, "from", e.Src, "to", e.Dst)
	s.bus.Publish(Event{
		Type:  EventStateChanged,
		From:  ConnectionState(e.Src),
		State: ConnectionState(e.Dst),
		Err:   cause,
	})
}
