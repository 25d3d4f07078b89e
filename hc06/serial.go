package hc06

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialDialer opens an HC-06 over a local serial port with go.bug.st/serial.
type SerialDialer struct {
	// Port is the OS name of the port, e.g. "/dev/ttyUSB0" or "COM3".
	Port string
	// ID is the USB identity, if known.
	ID PortIdentity
}

func (d *SerialDialer) Dial(ctx context.Context, params LinkParams) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("hc06: context is nil")
	}
	if d.Port == "" {
		return nil, errors.New("hc06: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !params.BaudRate.Valid() {
		return nil, fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidArgument, int(params.BaudRate))
	}
	parity, err := serialParity(params.Parity)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: int(params.BaudRate),
		DataBits: 8,
		Parity:   parity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.Port, err)
	}
	return port, nil
}

func (d *SerialDialer) Identity() PortIdentity { return d.ID }

func (d *SerialDialer) Name() string { return d.Port }

func serialParity(p Parity) (serial.Parity, error) {
	switch p {
	case ParityNone, "":
		return serial.NoParity, nil
	case ParityOdd:
		return serial.OddParity, nil
	case ParityEven:
		return serial.EvenParity, nil
	default:
		return serial.NoParity, fmt.Errorf("%w: unsupported parity %q", ErrInvalidArgument, string(p))
	}
}

// PortLister lists the serial ports of the host.
type PortLister func() ([]*enumerator.PortDetails, error)

// SerialProvider finds HC-06 adapters among the host's USB serial ports.
type SerialProvider struct {
	// PortName, if set, is returned by Request regardless of enumeration.
	PortName string
	// List defaults to enumerator.GetDetailedPortsList.
	List PortLister
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Known returns a dialer for every USB serial port.
func (p *SerialProvider) Known(ctx context.Context) ([]Dialer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list := p.List
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	var dialers []Dialer
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		dialers = append(dialers, &SerialDialer{
			Port: port.Name,
			ID: PortIdentity{
				VendorID:  strings.ToLower(port.VID),
				ProductID: strings.ToLower(port.PID),
			},
		})
	}
	p.logger().Debug("Enumerated serial ports", "total", len(ports), "usb", len(dialers))
	return dialers, nil
}

// Preferred returns the configured port, or nil if PortName is empty. A port
// found by enumeration carries its USB identity.
func (p *SerialProvider) Preferred(ctx context.Context) (Dialer, error) {
	if p.PortName == "" {
		return nil, nil
	}
	known, err := p.Known(ctx)
	if err != nil {
		p.logger().Debug("Listing ports for the configured port failed", "port", p.PortName, "error", err)
	}
	for _, d := range known {
		if d.Name() == p.PortName {
			return d, nil
		}
	}
	// Not USB or not enumerable; open it by name without an identity.
	return &SerialDialer{Port: p.PortName}, nil
}

// Request returns the configured port, or the first USB serial port.
func (p *SerialProvider) Request(ctx context.Context) (Dialer, error) {
	if p.PortName != "" {
		return p.Preferred(ctx)
	}
	known, err := p.Known(ctx)
	if err != nil {
		return nil, err
	}
	if len(known) == 0 {
		return nil, ErrNoPort
	}
	return known[0], nil
}

func (p *SerialProvider) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
