// Package hal defines the hardware the bootloader driver consumes: an I2C
// bus and the two control lines wired to the co-processor.
package hal

import "errors"

// ErrNoDevice is wrapped by Bus implementations when the addressed device
// did not answer (NACK on its address). The bootloader does this while it
// is busy with flash, so callers may treat it as transient.
var ErrNoDevice = errors.New("no device at address")

// Bus is a blocking I2C master.
type Bus interface {
	// Write sends p to the 7-bit device address in one transaction.
	Write(addr uint16, p []byte) error
	// Read fills p from the device in one transaction.
	Read(addr uint16, p []byte) error
}

// Mode is the electrical mode of a bidirectional line.
type Mode int

const (
	Input Mode = iota
	OutputPushPull
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case OutputPushPull:
		return "output"
	default:
		return "unknown"
	}
}

// OutputLine is a line the host only drives, like an open-drain reset.
type OutputLine interface {
	Set(high bool) error
}

// Line is a line that can be released to a floating input or driven.
type Line interface {
	OutputLine
	SetMode(m Mode) error
	Get() (bool, error)
}
