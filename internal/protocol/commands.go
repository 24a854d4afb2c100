package protocol

import "fmt"

// Command is a single-byte STM32 ROM bootloader command code.
type Command byte

// STM32 ROM bootloader commands (I2C flavour)
const (
	CmdGet                       Command = 0x00
	CmdGetVersion                Command = 0x01
	CmdGetID                     Command = 0x02
	CmdReadMemory                Command = 0x11
	CmdGo                        Command = 0x21
	CmdWriteMemory               Command = 0x31
	CmdNoStretchWriteMemory      Command = 0x32
	CmdErase                     Command = 0x44
	CmdNoStretchErase            Command = 0x45
	CmdNoStretchWriteProtect     Command = 0x64
	CmdNoStretchWriteUnprotect   Command = 0x74
	CmdNoStretchReadoutProtect   Command = 0x83
	CmdNoStretchReadoutUnprotect Command = 0x93
)

// String returns the command mnemonic, or its hex value when unknown.
func (c Command) String() string {
	switch c {
	case CmdGet:
		return "GET"
	case CmdGetVersion:
		return "GET_VERSION"
	case CmdGetID:
		return "GET_ID"
	case CmdReadMemory:
		return "READ_MEMORY"
	case CmdGo:
		return "GO"
	case CmdWriteMemory:
		return "WRITE_MEMORY"
	case CmdNoStretchWriteMemory:
		return "NS_WRITE_MEMORY"
	case CmdErase:
		return "ERASE"
	case CmdNoStretchErase:
		return "NS_ERASE"
	case CmdNoStretchWriteProtect:
		return "NS_WRITE_PROTECT"
	case CmdNoStretchWriteUnprotect:
		return "NS_WRITE_UNPROTECT"
	case CmdNoStretchReadoutProtect:
		return "NS_READOUT_PROTECT"
	case CmdNoStretchReadoutUnprotect:
		return "NS_READOUT_UNPROTECT"
	default:
		return fmt.Sprintf("0x%02X", byte(c))
	}
}

// Status is the single byte the bootloader answers after each frame.
type Status byte

// Status bytes returned by the ROM bootloader
const (
	Ack  Status = 0x79
	Nack Status = 0x1F
	Busy Status = 0x76
)

// Known reports whether s is one of ACK, NACK or BUSY.
func (s Status) Known() bool {
	return s == Ack || s == Nack || s == Busy
}

func (s Status) String() string {
	switch s {
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	case Busy:
		return "BUSY"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(s))
	}
}
