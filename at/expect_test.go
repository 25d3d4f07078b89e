package at_test

import (
	"testing"

	"i4.energy/across/hc06ctl/at"
)

func TestDefaultResponses(t *testing.T) {
	tests := []struct {
		name     string
		op       at.Op
		response string
		accepted bool
	}{
		{name: "Baud OK with rate", op: at.OpBaud, response: "OK115200", accepted: true},
		{name: "Baud bare OK", op: at.OpBaud, response: "OK", accepted: true},
		{name: "Baud error", op: at.OpBaud, response: "ERROR", accepted: false},
		{name: "Baud empty", op: at.OpBaud, response: "", accepted: false},
		{name: "Parity OK", op: at.OpParity, response: "OK EVEN", accepted: true},
		{name: "Role OK", op: at.OpRole, response: "OK+ROLE:M", accepted: true},
		{name: "Name setname", op: at.OpName, response: "OKsetname", accepted: true},
		{name: "Name alternate firmware", op: at.OpName, response: "OKname", accepted: true},
		{name: "Name bare OK", op: at.OpName, response: "OK", accepted: false},
		{name: "Name wrong case", op: at.OpName, response: "OKSETNAME", accepted: false},
		{name: "PIN mixed case", op: at.OpPIN, response: "OKsetPIN", accepted: true},
		{name: "PIN lower case", op: at.OpPIN, response: "oksetpin", accepted: true},
		{name: "PIN error", op: at.OpPIN, response: "ERROR", accepted: false},
	}

	responses := at.DefaultResponses()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := responses.For(tt.op).Accepts(tt.response); got != tt.accepted {
				t.Errorf("%s: Accepts(%q) = %v, want %v", tt.op, tt.response, got, tt.accepted)
			}
		})
	}
}

func TestResponsesWithDefaults(t *testing.T) {
	custom := at.Responses{
		Name: at.Match{Exact: []string{"OKnamed"}},
	}.WithDefaults()

	if !custom.Name.Accepts("OKnamed") {
		t.Error("expected custom name token to be kept")
	}
	if custom.Name.Accepts("OKsetname") {
		t.Error("expected default name token to be replaced")
	}
	if !custom.PIN.Accepts("OKsetPIN") {
		t.Error("expected unset PIN entry to fall back to default")
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{name: "Liveness check", payload: "", expected: "AT"},
		{name: "Version", payload: at.CmdVersion, expected: "AT+VERSION"},
		{name: "Baud", payload: at.Baud("8"), expected: "AT+BAUD8"},
		{name: "Parity", payload: at.ParityEven, expected: "AT+PE"},
		{name: "Role", payload: at.Role(at.RoleMaster), expected: "AT+ROLE=M"},
		{name: "Name", payload: at.Name("Foo"), expected: "AT+NAMEFoo"},
		{name: "PIN", payload: at.PIN("1234"), expected: "AT+PIN1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := at.Command(tt.payload); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStripOK(t *testing.T) {
	if got := at.StripOK("OKlinvorV1.8"); got != "linvorV1.8" {
		t.Errorf("expected OK prefix stripped, got %q", got)
	}
	if got := at.StripOK("hc01.comV2.0"); got != "hc01.comV2.0" {
		t.Errorf("expected response unchanged, got %q", got)
	}
}
