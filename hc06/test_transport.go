package hc06

import (
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking serial port with
// channels. The Session's reader goroutine reads continuously, so reads must
// block until data is queued, as they would on a real port.
//
// Respond, when set, is called for every write and its result is queued as
// device output, so simple request/reply exchanges need no goroutines in
// the test.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	writes   []string

	// Respond maps a written command to the device reply. An empty reply
	// simulates a device that ignores the command.
	Respond func(cmd string) string
	// CloseErr is returned by Close.
	CloseErr error
}

// NewTestTransport creates a new test transport.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 16),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	cmd := string(p)
	t.writes = append(t.writes, cmd)
	respond := t.Respond
	t.mu.Unlock()

	if respond != nil {
		if reply := respond(cmd); reply != "" {
			t.SendData(reply)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return t.CloseErr
}

// SendData queues data to be read from the transport, simulating output
// from the device.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Unplug simulates the adapter disappearing: pending and future reads fail.
func (t *TestTransport) Unplug() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.readChan)
	}
}

// Writes returns every command written so far.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Closed reports whether Close or Unplug was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// TestDialer hands out TestTransports and records the link parameters of
// every Dial.
type TestDialer struct {
	mu    sync.Mutex
	dials []LinkParams
	last  *TestTransport

	Port string
	ID   PortIdentity
	Err  error
	// Respond is installed on every transport this dialer creates.
	Respond func(cmd string) string
}

func (d *TestDialer) Dial(ctx context.Context, params LinkParams) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, params)
	if d.Err != nil {
		return nil, d.Err
	}
	t := NewTestTransport()
	t.Respond = d.Respond
	d.last = t
	return t, nil
}

func (d *TestDialer) Identity() PortIdentity { return d.ID }

func (d *TestDialer) Name() string {
	if d.Port == "" {
		return "test"
	}
	return d.Port
}

// Dials returns the link parameters of every Dial call.
func (d *TestDialer) Dials() []LinkParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]LinkParams(nil), d.dials...)
}

// Last returns the most recently created transport.
func (d *TestDialer) Last() *TestTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
