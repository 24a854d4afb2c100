// Package gobotio runs the bootloader bus and control lines on a gobot
// platform adaptor, such as a Raspberry Pi with BOOT0 and NRST wired to
// header pins.
package gobotio

import (
	"fmt"
	"strings"
	"sync"

	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/bigbag/i2cboot/internal/hal"
)

// Connector opens I2C connections. Gobot adaptors such as raspi.Adaptor
// satisfy it.
type Connector interface {
	GetI2cConnection(address int, busNum int) (i2c.Connection, error)
}

// Bus is a hal.Bus on top of gobot I2C connections. A connection is
// opened lazily per target address and kept until Close.
type Bus struct {
	connector Connector
	busNum    int

	mu    sync.Mutex
	conns map[uint16]i2c.Connection
}

// NewBus returns a bus on the adaptor's I2C bus busNum.
func NewBus(connector Connector, busNum int) *Bus {
	return &Bus{
		connector: connector,
		busNum:    busNum,
		conns:     make(map[uint16]i2c.Connection),
	}
}

func (b *Bus) Write(addr uint16, p []byte) error {
	conn, err := b.connection(addr)
	if err != nil {
		return err
	}

	n, err := conn.Write(p)
	if err != nil {
		return classify("write", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c write 0x%02X: short write %d of %d bytes", addr, n, len(p))
	}
	return nil
}

func (b *Bus) Read(addr uint16, p []byte) error {
	conn, err := b.connection(addr)
	if err != nil {
		return err
	}

	n, err := conn.Read(p)
	if err != nil {
		return classify("read", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c read 0x%02X: short read %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// Close closes all connections opened by the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.conns, addr)
	}
	return firstErr
}

func (b *Bus) connection(addr uint16) (i2c.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.conns[addr]; ok {
		return conn, nil
	}

	conn, err := b.connector.GetI2cConnection(int(addr), b.busNum)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d address 0x%02X: %w", b.busNum, addr, err)
	}
	b.conns[addr] = conn
	return conn, nil
}

// noDeviceMessages are the errno texts the kernel gives for an address
// nobody acknowledged. Gobot does not always keep the errno in the chain.
var noDeviceMessages = []string{
	"no such device or address",
	"remote i/o error",
	"no such device",
	"input/output error",
}

func classify(op string, addr uint16, err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range noDeviceMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("i2c %s 0x%02X: %v: %w", op, addr, err, hal.ErrNoDevice)
		}
	}
	return fmt.Errorf("i2c %s 0x%02X: %w", op, addr, err)
}

// Pins reads and writes adaptor GPIO pins.
type Pins interface {
	gpio.DigitalReader
	gpio.DigitalWriter
}

// Line is one GPIO pin as a hal.Line. Gobot reconfigures a pin's direction
// on access, so a read turns the pin into an input.
type Line struct {
	pins Pins
	pin  string
	mode hal.Mode
}

// NewLine returns the line on pin, e.g. "11" for physical header pin 11.
func NewLine(pins Pins, pin string) *Line {
	return &Line{
		pins: pins,
		pin:  pin,
		mode: hal.Input,
	}
}

func (l *Line) Set(high bool) error {
	var level byte
	if high {
		level = 1
	}
	if err := l.pins.DigitalWrite(l.pin, level); err != nil {
		return fmt.Errorf("pin %s: %w", l.pin, err)
	}
	l.mode = hal.OutputPushPull
	return nil
}

// SetMode switches the pin direction. Output takes effect with the next
// Set.
func (l *Line) SetMode(mode hal.Mode) error {
	if mode == hal.Input {
		if _, err := l.pins.DigitalRead(l.pin); err != nil {
			return fmt.Errorf("pin %s: %w", l.pin, err)
		}
	}
	l.mode = mode
	return nil
}

func (l *Line) Get() (bool, error) {
	v, err := l.pins.DigitalRead(l.pin)
	if err != nil {
		return false, fmt.Errorf("pin %s: %w", l.pin, err)
	}
	l.mode = hal.Input
	return v != 0, nil
}
