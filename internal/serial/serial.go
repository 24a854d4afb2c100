// Package serial drives BOOT0 and NRST from the modem control outputs of a
// USB serial adapter, the usual wiring on boards that pair an I2C adapter
// with a CP210x or FTDI bridge.
package serial

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/bigbag/i2cboot/internal/hal"
)

// Signal selects a modem control output.
type Signal int

const (
	DTR Signal = iota
	RTS
)

func (s Signal) String() string {
	if s == RTS {
		return "rts"
	}
	return "dtr"
}

// ParseSignal accepts "dtr" or "rts", case-insensitively. A leading "!"
// marks the line as driven through an inverting transistor.
func ParseSignal(name string) (Signal, bool, error) {
	inverted := strings.HasPrefix(name, "!")
	switch strings.ToLower(strings.TrimPrefix(name, "!")) {
	case "dtr":
		return DTR, inverted, nil
	case "rts":
		return RTS, inverted, nil
	}
	return DTR, false, fmt.Errorf("unknown modem signal %q (want dtr or rts)", name)
}

// modemControl is the part of serial.Port the lines use.
type modemControl interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// Port wraps a serial port used only for its modem control outputs.
type Port struct {
	port     serial.Port
	portName string
}

// Open opens portName with both control outputs deasserted.
func Open(portName string) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			DTR: false,
			RTS: false,
		},
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	return &Port{
		port:     port,
		portName: portName,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// Line returns the control line on signal.
func (p *Port) Line(signal Signal, inverted bool) *ModemLine {
	return NewModemLine(p.port, signal, inverted)
}

// ModemLine adapts one modem output to hal.Line.
//
// A modem output cannot float, so Input mode deasserts the signal, which
// leaves an open-collector driver released. Get reports the level last
// driven since the outputs cannot be read back.
type ModemLine struct {
	port     modemControl
	signal   Signal
	inverted bool
	mode     hal.Mode
	level    bool
}

// NewModemLine wraps signal on port.
func NewModemLine(port modemControl, signal Signal, inverted bool) *ModemLine {
	return &ModemLine{
		port:     port,
		signal:   signal,
		inverted: inverted,
		mode:     hal.Input,
		level:    true,
	}
}

// Set drives the pin level seen by the target.
func (l *ModemLine) Set(high bool) error {
	// Inverting drivers pull the pin low when the signal is asserted.
	if err := l.drive(high != l.inverted); err != nil {
		return err
	}
	l.level = high
	return nil
}

// SetMode switches between driving and releasing the line.
func (l *ModemLine) SetMode(mode hal.Mode) error {
	l.mode = mode
	if mode == hal.Input {
		if err := l.drive(false); err != nil {
			return err
		}
		l.level = l.inverted
	}
	return nil
}

// Get returns the last driven level.
func (l *ModemLine) Get() (bool, error) {
	return l.level, nil
}

func (l *ModemLine) drive(asserted bool) error {
	var err error
	if l.signal == RTS {
		err = l.port.SetRTS(asserted)
	} else {
		err = l.port.SetDTR(asserted)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", l.signal, err)
	}
	return nil
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// Port enumeration, replaceable in tests.
var (
	portsList     = serial.GetPortsList
	detailedPorts = enumerator.GetDetailedPortsList
)

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := portsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}

// ListPortDetails returns the available ports with USB identification
// where the platform provides it, and bare names where it does not.
func ListPortDetails() ([]PortInfo, error) {
	details, err := detailedPorts()
	if err != nil {
		names, listErr := ListPorts()
		if listErr != nil {
			return nil, err
		}
		ports := make([]PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}
