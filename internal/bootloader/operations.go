package bootloader

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/i2cboot/internal/protocol"
)

// ReadOption adds a frame or framing rule to ReadCommand.
type ReadOption func(*readRequest)

type readRequest struct {
	address    []byte
	argument   []byte
	noFinalAck bool
}

// Addr sends address as a 4-byte big-endian frame with its checksum.
func Addr(address uint32) ReadOption {
	return func(r *readRequest) {
		r.address = protocol.AddressFrame(address)
	}
}

// RawAddr sends a pre-built address frame verbatim.
func RawAddr(frame []byte) ReadOption {
	return func(r *readRequest) {
		r.address = frame
	}
}

// Count sends a single byte-sized count with its complement.
func Count(n byte) ReadOption {
	return func(r *readRequest) {
		r.argument = protocol.CountFrame(n)
	}
}

// Arg sends payload followed by its XOR checksum.
func Arg(payload []byte) ReadOption {
	return func(r *readRequest) {
		r.argument = protocol.AddXorCheck(payload)
	}
}

// NoFinalAck skips the status byte after the payload.
func NoFinalAck() ReadOption {
	return func(r *readRequest) {
		r.noFinalAck = true
	}
}

// GetVersion returns the raw GET reply: length, bootloader version and the
// supported command codes.
func (d *Driver) GetVersion() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readCommand(protocol.CmdGet, protocol.VersionLength)
}

// Version is GetVersion decoded.
func (d *Driver) Version() (protocol.VersionInfo, error) {
	blob, err := d.GetVersion()
	if err != nil {
		return protocol.VersionInfo{}, err
	}
	return protocol.ParseVersion(blob)
}

// GetID returns the product ID of the co-processor.
func (d *Driver) GetID() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	blob, err := d.readCommand(protocol.CmdGetID, protocol.IDLength)
	if err != nil {
		return 0, err
	}
	return protocol.ParseID(blob)
}

// BulkErase mass-erases all of flash.
func (d *Driver) BulkErase() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status, err := d.doOperation(protocol.CmdNoStretchErase, protocol.MassEraseArgument)
	if err != nil {
		return false, err
	}

	d.log.WithField("status", status).Debug("bulk erase done")
	return status == protocol.Ack, nil
}

// ReadoutUnprotect removes readout protection. The chip mass-erases itself
// in the process, so flash content is undefined afterwards.
func (d *Driver) ReadoutUnprotect() (protocol.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleAckOperation(protocol.CmdNoStretchReadoutUnprotect)
}

// ReadoutProtect enables readout protection.
func (d *Driver) ReadoutProtect() (protocol.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleAckOperation(protocol.CmdNoStretchReadoutProtect)
}

// ReadAt reads length bytes (1 to 256) at address. The address need not be
// aligned, but it must be mapped.
func (d *Driver) ReadAt(address uint32, length int) ([]byte, error) {
	if length < 1 || length > protocol.MaxTransfer {
		return nil, &protocol.PreconditionError{
			Op:     "read",
			Reason: fmt.Sprintf("length %d out of range 1-%d", length, protocol.MaxTransfer),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.readCommand(protocol.CmdReadMemory, length,
		Addr(address), Count(byte(length-1)), NoFinalAck())
	if err != nil {
		return nil, fmt.Errorf("read at 0x%08X: %w", address, err)
	}
	return data, nil
}

// WriteAt writes data to address. Both must be 4-byte aligned and data is
// at most 256 bytes. Flash must be erased first: the chip silently ignores
// writes to programmed flash.
func (d *Driver) WriteAt(address uint32, data []byte) (bool, error) {
	if err := checkWrite(address, data); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readCommand(protocol.CmdNoStretchWriteMemory, 0, Addr(address)); err != nil {
		return false, fmt.Errorf("write at 0x%08X: %w", address, err)
	}

	if err := d.bus.Write(d.config.BusAddress, protocol.WriteFrame(data)); err != nil {
		return false, fmt.Errorf("write at 0x%08X: data frame: %w", address, err)
	}

	status, err := d.waitUntilDone()
	if err != nil {
		return false, fmt.Errorf("write at 0x%08X: %w", address, err)
	}

	d.log.WithFields(logrus.Fields{
		"addr":   fmt.Sprintf("0x%08X", address),
		"len":    len(data),
		"status": status,
	}).Debug("write done")
	return status == protocol.Ack, nil
}

func checkWrite(address uint32, data []byte) error {
	switch {
	case len(data) == 0:
		return &protocol.PreconditionError{Op: "write", Reason: "no data"}
	case len(data) > protocol.MaxTransfer:
		return &protocol.PreconditionError{
			Op:     "write",
			Reason: fmt.Sprintf("length %d exceeds %d", len(data), protocol.MaxTransfer),
		}
	case len(data)%protocol.WriteAlignment != 0:
		return &protocol.PreconditionError{
			Op:     "write",
			Reason: fmt.Sprintf("length %d is not a multiple of %d", len(data), protocol.WriteAlignment),
		}
	case address%protocol.WriteAlignment != 0:
		return &protocol.PreconditionError{
			Op:     "write",
			Reason: fmt.Sprintf("address 0x%08X is not %d-byte aligned", address, protocol.WriteAlignment),
		}
	}
	return nil
}

// RunAt jumps to address, which must hold a vector table (initial stack
// pointer then reset handler), not an arbitrary instruction.
func (d *Driver) RunAt(address uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readCommand(protocol.CmdGo, 0, Addr(address)); err != nil {
		return fmt.Errorf("run at 0x%08X: %w", address, err)
	}

	d.log.WithField("addr", fmt.Sprintf("0x%08X", address)).Debug("jumped")
	return nil
}
