//go:build linux

package i2cdev

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bigbag/i2cboot/internal/hal"
)

// ioctl request selecting the target address (linux/i2c-dev.h)
const i2cSlave = 0x0703

const noAddress = 0xFFFF

// Bus is an i2c-dev adapter. Each Read or Write is one bus transaction.
type Bus struct {
	mu   sync.Mutex
	file *os.File
	path string
	addr uint16
}

// Open opens an i2c-dev node such as /dev/i2c-1.
func Open(path string) (*Bus, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &Bus{
		file: file,
		path: path,
		addr: noAddress,
	}, nil
}

// Close closes the bus node.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		err := b.file.Close()
		b.file = nil
		return err
	}
	return nil
}

// Path returns the device node path.
func (b *Bus) Path() string {
	return b.path
}

// Write sends p to addr.
func (b *Bus) Write(addr uint16, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.target(addr); err != nil {
		return err
	}

	n, err := b.file.Write(p)
	if err != nil {
		return classify("write", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c write 0x%02X: short write %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// Read fills p from addr.
func (b *Bus) Read(addr uint16, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.target(addr); err != nil {
		return err
	}

	n, err := b.file.Read(p)
	if err != nil {
		return classify("read", addr, err)
	}
	if n != len(p) {
		return fmt.Errorf("i2c read 0x%02X: short read %d of %d bytes", addr, n, len(p))
	}
	return nil
}

// target selects addr for following transactions. The kernel remembers
// it per open file, so the ioctl is skipped when it did not change.
func (b *Bus) target(addr uint16) error {
	if b.file == nil {
		return fmt.Errorf("i2c %s: closed", b.path)
	}
	if b.addr == addr {
		return nil
	}

	if err := unix.IoctlSetInt(int(b.file.Fd()), i2cSlave, int(addr)); err != nil {
		b.addr = noAddress
		return fmt.Errorf("i2c select 0x%02X on %s: %w", addr, b.path, err)
	}
	b.addr = addr
	return nil
}

// classify maps the errno adapters report for an unanswered address onto
// hal.ErrNoDevice.
func classify(op string, addr uint16, err error) error {
	if isNoDevice(err) {
		return fmt.Errorf("i2c %s 0x%02X: %v: %w", op, addr, err, hal.ErrNoDevice)
	}
	return fmt.Errorf("i2c %s 0x%02X: %w", op, addr, err)
}

func isNoDevice(err error) bool {
	return errors.Is(err, unix.ENXIO) ||
		errors.Is(err, unix.EREMOTEIO) ||
		errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.EIO)
}
