package at

import "strings"

// Match describes the responses a firmware revision sends when it accepts a
// command. A response is accepted when it starts with Prefix (if set) or
// equals one of Exact (if set). Empty responses are never accepted.
type Match struct {
	Prefix   string   `mapstructure:"prefix" json:"prefix,omitempty"`
	Exact    []string `mapstructure:"exact" json:"exact,omitempty"`
	FoldCase bool     `mapstructure:"fold_case" json:"fold_case,omitempty"`
}

// Accepts reports whether resp signals success.
func (m Match) Accepts(resp string) bool {
	if resp == "" {
		return false
	}
	eq := func(a, b string) bool {
		if m.FoldCase {
			return strings.EqualFold(a, b)
		}
		return a == b
	}
	if m.Prefix != "" && len(resp) >= len(m.Prefix) && eq(resp[:len(m.Prefix)], m.Prefix) {
		return true
	}
	for _, want := range m.Exact {
		if eq(resp, want) {
			return true
		}
	}
	return false
}

// Responses is the expected-token table, one Match per operation. Revisions
// disagree on the exact strings, so callers may override any entry.
type Responses struct {
	Baud   Match `mapstructure:"baud" json:"baud"`
	Parity Match `mapstructure:"parity" json:"parity"`
	Role   Match `mapstructure:"role" json:"role"`
	Name   Match `mapstructure:"name" json:"name"`
	PIN    Match `mapstructure:"pin" json:"pin"`
}

// DefaultResponses returns the table observed on common HC-06 firmware.
func DefaultResponses() Responses {
	return Responses{
		Baud:   Match{Prefix: OK},
		Parity: Match{Prefix: OK},
		Role:   Match{Prefix: OK},
		Name:   Match{Exact: []string{"OKsetname", "OKname"}},
		PIN:    Match{Exact: []string{"OKsetPIN"}, FoldCase: true},
	}
}

// For returns the Match for op.
func (r Responses) For(op Op) Match {
	switch op {
	case OpBaud:
		return r.Baud
	case OpParity:
		return r.Parity
	case OpRole:
		return r.Role
	case OpName:
		return r.Name
	case OpPIN:
		return r.PIN
	default:
		return Match{}
	}
}

// IsZero reports whether no expectation has been configured.
func (m Match) IsZero() bool {
	return m.Prefix == "" && len(m.Exact) == 0
}

// WithDefaults fills unset entries from DefaultResponses.
func (r Responses) WithDefaults() Responses {
	d := DefaultResponses()
	if r.Baud.IsZero() {
		r.Baud = d.Baud
	}
	if r.Parity.IsZero() {
		r.Parity = d.Parity
	}
	if r.Role.IsZero() {
		r.Role = d.Role
	}
	if r.Name.IsZero() {
		r.Name = d.Name
	}
	if r.PIN.IsZero() {
		r.PIN = d.PIN
	}
	return r
}
