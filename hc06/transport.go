package hc06

import (
	"context"
	"io"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=hc06

// Transport represents an open, bidirectional byte stream to an HC-06.
//
// A Transport is owned by exactly one Session for the lifetime of a
// connection. Read must block until data is available and must return an
// error once the Transport is closed, which is how the Session's reader
// loop learns of a disconnection.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to one physical port.
//
// A Dialer stays valid after its Transport is closed, so a Session can
// reopen the same port with new link parameters after a baud or parity
// change.
type Dialer interface {
	// Dial opens the port with the given link parameters and fixed 8-N-1
	// framing, without flow control. It should respect cancellation of ctx.
	Dial(ctx context.Context, params LinkParams) (Transport, error)
	// Identity returns the USB vendor/product identity of the port, or the
	// zero PortIdentity if unknown.
	Identity() PortIdentity
	// Name returns a human readable port name such as "/dev/ttyUSB0".
	Name() string
}

// Provider finds ports.
type Provider interface {
	// Request returns a port chosen by the host environment: the configured
	// port, or the first suitable one found. It returns ErrNoPort if none.
	Request(ctx context.Context) (Dialer, error)
	// Known lists ports the host already knows about.
	Known(ctx context.Context) ([]Dialer, error)
}

// PreferredProvider is a Provider with a port chosen by configuration, which
// takes precedence over the last used and the first known port.
type PreferredProvider interface {
	Provider
	// Preferred returns the configured port, or nil if none is configured.
	Preferred(ctx context.Context) (Dialer, error)
}
