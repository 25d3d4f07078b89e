package hc06_test

import (
	"io"
	"sync"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/hc06ctl/hc06"
)

// MockSequenceBuilder scripts a MockTransport as an HC-06: each expected
// write queues the device reply for the Session's reader goroutine.
type MockSequenceBuilder struct {
	transport *hc06.MockTransport
	replies   chan []byte
	once      sync.Once
	calls     []any
}

// NewMockSequence installs blocking Read and Close behaviour on transport.
func NewMockSequence(transport *hc06.MockTransport) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		transport: transport,
		replies:   make(chan []byte, 16),
		calls:     []any{},
	}
	transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		data, ok := <-b.replies
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	}).AnyTimes()
	return b
}

// Command expects cmd to be written and answers with reply. An empty reply
// leaves the device silent.
func (b *MockSequenceBuilder) Command(cmd, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).DoAndReturn(func(p []byte) (int, error) {
			if reply != "" {
				b.replies <- []byte(reply)
			}
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Ping() *MockSequenceBuilder {
	return b.Command("AT", "OK")
}

func (b *MockSequenceBuilder) Version(v string) *MockSequenceBuilder {
	return b.Command("AT+VERSION", "OK"+v)
}

func (b *MockSequenceBuilder) Baud(code, reply string) *MockSequenceBuilder {
	return b.Command("AT+BAUD"+code, reply)
}

func (b *MockSequenceBuilder) Name(name, reply string) *MockSequenceBuilder {
	return b.Command("AT+NAME"+name, reply)
}

func (b *MockSequenceBuilder) PIN(pin, reply string) *MockSequenceBuilder {
	return b.Command("AT+PIN"+pin, reply)
}

// Close expects the Session to close the transport.
func (b *MockSequenceBuilder) Close() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().DoAndReturn(func() error {
			b.Unplug()
			return nil
		}),
	)
	return b
}

// Unplug makes pending and future reads fail, as when the adapter is removed.
func (b *MockSequenceBuilder) Unplug() {
	b.once.Do(func() { close(b.replies) })
}

// Build returns the ordered expectations for gomock.InOrder.
func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
