// Package flasher programs whole images through the bootloader: it splits
// them into transfers, reports progress and verifies by reading back.
package flasher

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bigbag/i2cboot/internal/firmware"
	"github.com/bigbag/i2cboot/internal/protocol"
)

const (
	connectAttempts = 5
	connectDelay    = 50 * time.Millisecond
)

// ProgressCallback is called to report progress in bytes.
type ProgressCallback func(current, total int)

// Device is the bootloader surface the flasher needs. *bootloader.Driver
// implements it.
type Device interface {
	EnterBootloader() error
	Reset() error
	Version() (protocol.VersionInfo, error)
	GetID() (uint16, error)
	BulkErase() (bool, error)
	ReadAt(address uint32, length int) ([]byte, error)
	WriteAt(address uint32, data []byte) (bool, error)
	RunAt(address uint32) error
}

// Info describes the connected bootloader.
type Info struct {
	Version   protocol.VersionInfo
	ProductID uint16
}

// Flasher handles programming firmware into the co-processor.
type Flasher struct {
	dev      Device
	progress ProgressCallback
	log      logrus.FieldLogger
	sleep    func(time.Duration)
}

// New creates a new Flasher for the given device.
func New(dev Device) *Flasher {
	return &Flasher{
		dev:   dev,
		log:   logrus.StandardLogger().WithField("component", "flasher"),
		sleep: time.Sleep,
	}
}

// SetLogger replaces the logger.
func (f *Flasher) SetLogger(log logrus.FieldLogger) {
	if log != nil {
		f.log = log.WithField("component", "flasher")
	}
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	f.progress = cb
}

func (f *Flasher) reportProgress(current, total int) {
	if f.progress != nil {
		f.progress(current, total)
	}
}

// Connect restarts the chip into the bootloader and waits until it answers.
func (f *Flasher) Connect() (*Info, error) {
	if err := f.dev.EnterBootloader(); err != nil {
		return nil, errors.Wrap(err, "failed to enter bootloader")
	}
	return f.Probe()
}

// Probe queries a chip that is already running the bootloader.
func (f *Flasher) Probe() (*Info, error) {
	var (
		version protocol.VersionInfo
		err     error
	)
	for attempt := 0; attempt < connectAttempts; attempt++ {
		version, err = f.dev.Version()
		if err == nil {
			break
		}
		f.log.WithError(err).WithField("attempt", attempt).Debug("bootloader not answering yet")
		f.sleep(connectDelay)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "no bootloader after %d attempts", connectAttempts)
	}

	info := &Info{Version: version}
	if version.Supports(protocol.CmdGetID) {
		pid, err := f.dev.GetID()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read product id")
		}
		info.ProductID = pid
	}

	f.log.WithFields(logrus.Fields{
		"version": version,
		"pid":     info.ProductID,
	}).Info("bootloader connected")
	return info, nil
}

// Erase mass-erases flash.
func (f *Flasher) Erase() error {
	ok, err := f.dev.BulkErase()
	if err != nil {
		return errors.Wrap(err, "mass erase")
	}
	if !ok {
		return errors.New("mass erase not acknowledged")
	}
	return nil
}

// FlashImage writes data at address, which must be word aligned. The tail
// is padded with 0xFF to a whole word. Flash must be erased beforehand.
func (f *Flasher) FlashImage(data []byte, address uint32, verify bool) error {
	if address%protocol.WriteAlignment != 0 {
		return errors.Errorf("address 0x%08X is not %d-byte aligned", address, protocol.WriteAlignment)
	}
	if len(data) == 0 {
		return errors.New("empty image")
	}

	data = pad(data)
	total := len(data)

	for offset := 0; offset < total; offset += protocol.MaxTransfer {
		end := offset + protocol.MaxTransfer
		if end > total {
			end = total
		}
		block := data[offset:end]
		at := address + uint32(offset)

		ok, err := f.dev.WriteAt(at, block)
		if err != nil {
			return errors.Wrapf(err, "write block at 0x%08X", at)
		}
		if !ok {
			return errors.Errorf("write block at 0x%08X not acknowledged", at)
		}

		f.reportProgress(end, total)
	}

	f.log.WithFields(logrus.Fields{
		"addr": address,
		"size": total,
	}).Debug("image written")

	if verify {
		if err := f.Verify(data, address); err != nil {
			return errors.Wrap(err, "verification failed")
		}
	}
	return nil
}

// Verify reads back len(data) bytes at address and compares them.
func (f *Flasher) Verify(data []byte, address uint32) error {
	actual, err := f.read(address, len(data), nil)
	if err != nil {
		return err
	}

	if !bytes.Equal(actual, data) {
		at := address
		for i := range data {
			if actual[i] != data[i] {
				at = address + uint32(i)
				break
			}
		}
		return errors.Errorf("mismatch at 0x%08X: expected crc %04X, got %04X",
			at, firmware.CRC16(data), firmware.CRC16(actual))
	}
	return nil
}

// FlashMultiple flashes regions in sequence with progress over all of them.
func (f *Flasher) FlashMultiple(regions []firmware.Region, verify bool) error {
	totalSize := 0
	for _, r := range regions {
		totalSize += len(pad(r.Data))
	}

	outer := f.progress
	defer func() { f.progress = outer }()

	done := 0
	for _, region := range regions {
		base := done
		f.progress = func(current, _ int) {
			if outer != nil {
				outer(base+current, totalSize)
			}
		}

		if err := f.FlashImage(region.Data, region.Address, verify); err != nil {
			return errors.Wrapf(err, "failed to flash %s at 0x%X", region.Name, region.Address)
		}
		done += len(pad(region.Data))
	}
	return nil
}

// ReadMemory reads length bytes at address in transfer-sized chunks.
func (f *Flasher) ReadMemory(address uint32, length int) ([]byte, error) {
	return f.read(address, length, f.reportProgress)
}

func (f *Flasher) read(address uint32, length int, progress ProgressCallback) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		n := length - len(out)
		if n > protocol.MaxTransfer {
			n = protocol.MaxTransfer
		}
		at := address + uint32(len(out))

		chunk, err := f.dev.ReadAt(at, n)
		if err != nil {
			return nil, errors.Wrapf(err, "read 0x%08X", at)
		}
		out = append(out, chunk...)
		if progress != nil {
			progress(len(out), length)
		}
	}
	return out, nil
}

// Run starts the code whose vector table is at address.
func (f *Flasher) Run(address uint32) error {
	return errors.Wrapf(f.dev.RunAt(address), "run at 0x%08X", address)
}

// Reboot resets the chip into its application.
func (f *Flasher) Reboot() error {
	return errors.Wrap(f.dev.Reset(), "reset")
}

func pad(data []byte) []byte {
	rem := len(data) % protocol.WriteAlignment
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data), len(data)+protocol.WriteAlignment-rem)
	copy(padded, data)
	for i := rem; i < protocol.WriteAlignment; i++ {
		padded = append(padded, 0xFF)
	}
	return padded
}
