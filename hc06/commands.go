package hc06

import (
	"context"
	"errors"
	"fmt"

	"i4.energy/across/hc06ctl/at"
)

// SendCommand writes "AT" (empty payload) or "AT+<payload>" and returns the
// framed response. Only one command may be in flight.
//
// If ctx has no deadline the configured command timeout applies. On expiry
// the request is abandoned, a late reply is dropped as unsolicited, and the
// returned error matches both ErrDeviceUnresponsive and
// context.DeadlineExceeded.
func (s *Session) SendCommand(ctx context.Context, payload string) (string, error) {
	cmd := at.Command(payload)

	// Registering under mu orders it against detach: either the request is
	// rejected by a concurrent Close or the command sees no transport.
	s.mu.Lock()
	t := s.transport
	if t == nil {
		s.mu.Unlock()
		return "", ErrPortNotOpen
	}
	req, err := s.corr.register(cmd)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if _, ok := ctx.Deadline(); !ok && s.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CommandTimeout)
		defer cancel()
	}

	s.log.Debug("Sending command", "id", req.id, "cmd", cmd)
	if _, err := t.Write([]byte(cmd)); err != nil {
		s.corr.abandon(req)
		return "", fmt.Errorf("write command %q: %w: %w", cmd, ErrTransport, err)
	}

	select {
	case r := <-req.result:
		return r.text, r.err
	case <-ctx.Done():
		s.corr.abandon(req)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command %q: %w: %w", cmd, ErrDeviceUnresponsive, ctx.Err())
		}
		return "", fmt.Errorf("command %q cancelled: %w", cmd, ctx.Err())
	}
}

// Ping sends the bare AT command and reports whether the device answered OK.
func (s *Session) Ping(ctx context.Context) (bool, error) {
	resp, err := s.SendCommand(ctx, "")
	if err != nil {
		return false, err
	}
	return resp == at.OK, nil
}

// Version returns the firmware version string, without the leading OK some
// revisions send.
func (s *Session) Version(ctx context.Context) (string, error) {
	resp, err := s.SendCommand(ctx, at.CmdVersion)
	if err != nil {
		return "", err
	}
	return at.StripOK(resp), nil
}

// SetBaud changes the device baud rate. The new rate takes effect on the
// device immediately; the caller must reopen the port to keep talking.
func (s *Session) SetBaud(ctx context.Context, b Baud) error {
	code, err := b.Code()
	if err != nil {
		return err
	}
	return s.expect(ctx, at.OpBaud, at.Baud(code))
}

// SetParity changes the device parity. Like SetBaud, the link must be
// reopened afterwards.
func (s *Session) SetParity(ctx context.Context, p Parity) error {
	code, err := p.Code()
	if err != nil {
		return err
	}
	return s.expect(ctx, at.OpParity, code)
}

func (s *Session) SetRole(ctx context.Context, r Role) error {
	code, err := r.Code()
	if err != nil {
		return err
	}
	return s.expect(ctx, at.OpRole, at.Role(code))
}

func (s *Session) SetName(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.expect(ctx, at.OpName, at.Name(name))
}

func (s *Session) SetPIN(ctx context.Context, pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}
	return s.expect(ctx, at.OpPIN, at.PIN(pin))
}

// expect sends payload and checks the reply against the expectation for op.
func (s *Session) expect(ctx context.Context, op at.Op, payload string) error {
	resp, err := s.SendCommand(ctx, payload)
	if err != nil {
		return fmt.Errorf("set %s: %w", op, err)
	}
	if !s.config.Responses.For(op).Accepts(resp) {
		return &RejectedError{Command: at.Command(payload), Response: resp}
	}
	return nil
}
