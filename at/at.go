package at

const (
	// Command framing. The HC-06 takes no terminator: a command ends when
	// the host stops sending.
	Prefix    = "AT"
	Separator = "+"

	// Response tokens
	OK    = "OK"
	ERROR = "ERROR"

	// Subcommands
	CmdVersion = "VERSION"
	CmdBaud    = "BAUD"
	CmdRole    = "ROLE="
	CmdName    = "NAME"
	CmdPIN     = "PIN"

	// Parity subcommands are the complete suffix.
	ParityNone = "PN"
	ParityOdd  = "PO"
	ParityEven = "PE"

	RoleMaster = "M"
	RoleSlave  = "S"

	// Device limits
	MaxNameLen = 20
	PINLen     = 4
)

// Op identifies a configuration operation for response validation.
type Op int

const (
	OpBaud Op = iota
	OpParity
	OpRole
	OpName
	OpPIN
)

func (o Op) String() string {
	switch o {
	case OpBaud:
		return "baud"
	case OpParity:
		return "parity"
	case OpRole:
		return "role"
	case OpName:
		return "name"
	case OpPIN:
		return "pin"
	default:
		return "unknown"
	}
}
