package hc06

import (
	"errors"
	"fmt"
)

var (
	// ErrPortNotOpen is returned when a command is attempted with no open
	// transport. No I/O is performed.
	ErrPortNotOpen = errors.New("port not open")

	// ErrPortClosed is returned to a command that was in flight when the
	// transport was closed, by the user or by a disconnection.
	ErrPortClosed = errors.New("port closed")

	// ErrDeviceUnresponsive is returned when the device does not answer a
	// ping, or does not answer a command before the command timeout.
	ErrDeviceUnresponsive = errors.New("device unresponsive")

	// ErrDeviceRejected matches any *RejectedError.
	ErrDeviceRejected = errors.New("device rejected command")

	// ErrInvalidArgument is returned by pre-send validation, before any
	// bytes reach the transport.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransport wraps failures of the underlying byte stream.
	ErrTransport = errors.New("transport error")

	// ErrAlreadyOpen is returned when Open is called while a transport is
	// held. Close or Reopen first.
	ErrAlreadyOpen = errors.New("port already open")

	// ErrCommandPending is returned when a command is issued while another
	// is awaiting its response. The protocol allows one at a time.
	ErrCommandPending = errors.New("command already pending")

	// ErrNoPort is returned when no port was given and none can be found.
	ErrNoPort = errors.New("no port to open")

	// ErrNoDialer is returned when a Session is opened without a Dialer.
	ErrNoDialer = errors.New("no dialer configured")
)

// RejectedError reports a device reply that is not the expected success
// token for the command.
type RejectedError struct {
	// Command is the wire command, e.g. "AT+PIN9999".
	Command string
	// Response is the cleaned reply, possibly empty.
	Response string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("device rejected %s: %q", e.Command, e.Response)
}

// Is makes errors.Is(err, ErrDeviceRejected) true for any RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrDeviceRejected
}
