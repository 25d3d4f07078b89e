package hc06

import (
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/hc06ctl/at"
)

// Baud is a serial bit rate supported by the HC-06.
type Baud int

// baudCodes maps rates to the single-character codes taken by AT+BAUD.
var baudCodes = map[Baud]string{
	1200:    "1",
	2400:    "2",
	4800:    "3",
	9600:    "4",
	19200:   "5",
	38400:   "6",
	57600:   "7",
	115200:  "8",
	230400:  "9",
	460800:  "A",
	921600:  "B",
	1382400: "C",
}

// Code returns the AT+BAUD code for b.
func (b Baud) Code() (string, error) {
	code, ok := baudCodes[b]
	if !ok {
		return "", fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidArgument, int(b))
	}
	return code, nil
}

// Valid reports whether b is one of the supported rates.
func (b Baud) Valid() bool {
	_, ok := baudCodes[b]
	return ok
}

// BaudFromCode returns the rate for an AT+BAUD code ("1".."C").
func BaudFromCode(code string) (Baud, error) {
	for b, c := range baudCodes {
		if strings.EqualFold(c, code) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown baud code %q", ErrInvalidArgument, code)
}

// ParseBaud accepts either a rate ("115200", "115,200") or a code ("8").
func ParseBaud(s string) (Baud, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if len(s) == 1 {
		return BaudFromCode(s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: baud rate %q", ErrInvalidArgument, s)
	}
	b := Baud(n)
	if !b.Valid() {
		return 0, fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidArgument, n)
	}
	return b, nil
}

// Parity is the serial parity mode.
type Parity string

const (
	ParityNone Parity = "none"
	ParityOdd  Parity = "odd"
	ParityEven Parity = "even"
)

// Code returns the AT parity subcommand for p.
func (p Parity) Code() (string, error) {
	switch p {
	case ParityNone:
		return at.ParityNone, nil
	case ParityOdd:
		return at.ParityOdd, nil
	case ParityEven:
		return at.ParityEven, nil
	default:
		return "", fmt.Errorf("%w: unsupported parity %q", ErrInvalidArgument, string(p))
	}
}

// ParseParity accepts a parity name or its AT code ("PN", "PO", "PE").
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n", "pn":
		return ParityNone, nil
	case "odd", "o", "po":
		return ParityOdd, nil
	case "even", "e", "pe":
		return ParityEven, nil
	default:
		return "", fmt.Errorf("%w: unsupported parity %q", ErrInvalidArgument, s)
	}
}

// Role is the Bluetooth role of the module.
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// Code returns the AT+ROLE code for r.
func (r Role) Code() (string, error) {
	switch r {
	case RoleMaster:
		return at.RoleMaster, nil
	case RoleSlave:
		return at.RoleSlave, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidArgument, string(r))
	}
}

// ParseRole accepts a role name or its AT code ("M", "S").
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master", "m":
		return RoleMaster, nil
	case "slave", "s":
		return RoleSlave, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidArgument, s)
	}
}

// DeviceConfig is the last configuration confirmed by the device.
type DeviceConfig struct {
	BaudRate Baud   `json:"baudRate"`
	Parity   Parity `json:"parity"`
	Name     string `json:"name"`
	PIN      string `json:"pin"`
	Role     Role   `json:"role"`
}

// DefaultDeviceConfig returns the factory settings of an HC-06.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		BaudRate: 9600,
		Parity:   ParityNone,
		Name:     "HC-06",
		PIN:      "1234",
		Role:     RoleSlave,
	}
}

// Validate checks every field against the device limits.
func (c DeviceConfig) Validate() error {
	if !c.BaudRate.Valid() {
		return fmt.Errorf("%w: unsupported baud rate %d", ErrInvalidArgument, int(c.BaudRate))
	}
	if _, err := c.Parity.Code(); err != nil {
		return err
	}
	if _, err := c.Role.Code(); err != nil {
		return err
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	return ValidatePIN(c.PIN)
}

// Link returns the serial parameters needed to talk to the device.
func (c DeviceConfig) Link() LinkParams {
	return LinkParams{BaudRate: c.BaudRate, Parity: c.Parity}
}

// ValidateName checks a device name before it is sent.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidArgument)
	}
	if len(name) > at.MaxNameLen {
		return fmt.Errorf("%w: name is %d bytes, max %d", ErrInvalidArgument, len(name), at.MaxNameLen)
	}
	return nil
}

// ValidatePIN checks a pairing PIN before it is sent.
func ValidatePIN(pin string) error {
	if len(pin) != at.PINLen {
		return fmt.Errorf("%w: PIN must be %d digits, got %d characters", ErrInvalidArgument, at.PINLen, len(pin))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: PIN must be numeric", ErrInvalidArgument)
		}
	}
	return nil
}

// LinkParams are the per-connection serial parameters. Data bits, stop bits
// and flow control are fixed at 8-N-1 without flow control.
type LinkParams struct {
	BaudRate Baud
	Parity   Parity
}

// PortIdentity identifies a physical USB adapter across sessions.
type PortIdentity struct {
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
}

// IsZero reports whether the identity is unknown.
func (id PortIdentity) IsZero() bool {
	return id.VendorID == "" && id.ProductID == ""
}

func (id PortIdentity) String() string {
	return fmt.Sprintf("V:%s/P:%s", id.VendorID, id.ProductID)
}

// ConnectionState is the state of the Session's transport.
type ConnectionState string

const (
	StateClosed    ConnectionState = "closed"
	StateOpening   ConnectionState = "opening"
	StateOpen      ConnectionState = "open"
	StateOpenError ConnectionState = "open-error"
)

func (s ConnectionState) String() string { return string(s) }

// Property names a configurable device field.
type Property string

const (
	PropertyName   Property = "name"
	PropertyPIN    Property = "pin"
	PropertyBaud   Property = "baud"
	PropertyParity Property = "parity"
	PropertyRole   Property = "role"
)

// Properties lists every configurable field.
var Properties = []Property{PropertyName, PropertyPIN, PropertyBaud, PropertyParity, PropertyRole}

// WriteState is the outcome of the last write of a property.
type WriteState string

const (
	WriteUnwritten WriteState = "unwritten"
	WriteWriting   WriteState = "writing"
	WriteError     WriteState = "error"
	WriteSuccess   WriteState = "success"
)
