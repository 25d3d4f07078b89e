package at

import "strings"

// Command returns the wire form of payload: the bare "AT" liveness check
// when payload is empty, "AT+<payload>" otherwise.
func Command(payload string) string {
	if payload == "" {
		return Prefix
	}
	return Prefix + Separator + payload
}

// Baud builds the suffix selecting the HC-06 baud code (e.g. "4" for 9600).
func Baud(code string) string { return CmdBaud + code }

// Role builds the suffix selecting master ("M") or slave ("S").
func Role(code string) string { return CmdRole + code }

// Name builds the suffix renaming the device.
func Name(name string) string { return CmdName + name }

// PIN builds the suffix changing the pairing PIN.
func PIN(pin string) string { return CmdPIN + pin }

// StripOK removes a leading OK echoed before a payload, as some firmware
// revisions do for VERSION.
func StripOK(resp string) string {
	return strings.TrimPrefix(resp, OK)
}
