// Package bootloader drives the STM32 system-memory bootloader over I2C.
//
// Every operation is a synchronous request/response exchange. The driver
// keeps no state between operations besides its handles; whether the chip
// currently runs the bootloader or its application is up to the caller.
package bootloader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/i2cboot/internal/hal"
	"github.com/bigbag/i2cboot/internal/protocol"
)

// Driver speaks the ROM bootloader protocol.
//
// Each exported method holds an internal lock for its whole exchange, so
// one high-level operation never interleaves with another on the same
// Driver. Other users of the bus must still stay off it meanwhile.
type Driver struct {
	bus   hal.Bus
	boot  hal.Line
	reset hal.OutputLine

	config Config
	log    logrus.FieldLogger

	mu sync.Mutex
}

// New creates a Driver on the given bus with the BOOT0 and NRST lines.
func New(bus hal.Bus, boot hal.Line, reset hal.OutputLine, opts ...Option) *Driver {
	if bus == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Driver{
		bus:    bus,
		boot:   boot,
		reset:  reset,
		config: cfg,
		log:    cfg.Logger.WithField("component", "bootloader"),
	}
}

// Reset releases BOOT0 and pulses NRST, leaving the chip running its
// application firmware.
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.lines(); err != nil {
		return err
	}

	if err := d.boot.SetMode(hal.Input); err != nil {
		return fmt.Errorf("release boot line: %w", err)
	}
	if err := d.pulseReset(); err != nil {
		return err
	}

	d.log.Debug("reset into application")
	return nil
}

// EnterBootloader restarts the chip with BOOT0 held high. BOOT0 is sampled
// only on the rising edge of NRST, so it is released again right after.
// Nothing here confirms entry; the next command exchange does.
func (d *Driver) EnterBootloader() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.lines(); err != nil {
		return err
	}

	if err := d.reset.Set(false); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	if err := d.boot.SetMode(hal.OutputPushPull); err != nil {
		return fmt.Errorf("drive boot line: %w", err)
	}
	if err := d.boot.Set(true); err != nil {
		return fmt.Errorf("set boot line high: %w", err)
	}
	if d.config.ResetPulse > 0 {
		d.config.Sleep(d.config.ResetPulse)
	}
	if err := d.reset.Set(true); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	if err := d.boot.SetMode(hal.Input); err != nil {
		return fmt.Errorf("release boot line: %w", err)
	}

	d.log.Debug("entered bootloader")
	return nil
}

func (d *Driver) lines() error {
	if d.boot == nil || d.reset == nil {
		return errors.New("control lines not configured")
	}
	return nil
}

func (d *Driver) pulseReset() error {
	if err := d.reset.Set(false); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	if d.config.ResetPulse > 0 {
		d.config.Sleep(d.config.ResetPulse)
	}
	if err := d.reset.Set(true); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	return nil
}

// SendCommand writes the command frame and requires an ACK.
func (d *Driver) SendCommand(cmd protocol.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendCommand(cmd)
}

// ReadCommand runs the common command skeleton: command, optional address
// frame, optional argument frame, payload read and final status. The
// bootloader is inconsistent about length prefixes and trailing ACKs, so
// callers pick the framing per command through opts.
func (d *Driver) ReadCommand(cmd protocol.Command, expectedLength int, opts ...ReadOption) ([]byte, error) {
	if expectedLength < 0 {
		return nil, &protocol.PreconditionError{
			Op:     "read command",
			Reason: fmt.Sprintf("negative length %d", expectedLength),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readCommand(cmd, expectedLength, opts...)
}

// WaitUntilDone polls the status byte while the chip reports BUSY or does
// not answer at all. It returns the first other status, or the last BUSY
// once the attempt budget runs out; BUSY is therefore a valid result and
// callers must check for it.
func (d *Driver) WaitUntilDone() (protocol.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitUntilDone()
}

// DoOperation sends cmd with a checksummed argument and waits for the
// final status.
func (d *Driver) DoOperation(cmd protocol.Command, argument []byte) (protocol.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doOperation(cmd, argument)
}

// DoubleAckOperation sends cmd and waits twice: once for acceptance and
// once for completion of the work it triggers.
func (d *Driver) DoubleAckOperation(cmd protocol.Command) (protocol.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleAckOperation(cmd)
}

func (d *Driver) sendCommand(cmd protocol.Command) error {
	if err := d.bus.Write(d.config.BusAddress, protocol.CommandFrame(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	status, err := d.readStatus()
	if err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	if status != protocol.Ack {
		d.log.WithFields(logrus.Fields{"cmd": cmd, "status": status}).Debug("command rejected")
		return &protocol.ProtocolError{Stage: protocol.StageCommand, Command: cmd, Status: status}
	}
	return nil
}

func (d *Driver) readCommand(cmd protocol.Command, expectedLength int, opts ...ReadOption) ([]byte, error) {
	var req readRequest
	for _, opt := range opts {
		opt(&req)
	}

	if err := d.sendCommand(cmd); err != nil {
		return nil, err
	}

	if req.address != nil {
		if err := d.writeFrame(cmd, protocol.StageAddress, req.address); err != nil {
			return nil, err
		}
	}

	if req.argument != nil {
		if err := d.writeFrame(cmd, protocol.StageArgument, req.argument); err != nil {
			return nil, err
		}
	}

	// Caller owns whatever comes next, e.g. the data frame of a write.
	if expectedLength == 0 {
		return nil, nil
	}

	payload := make([]byte, expectedLength)
	if err := d.bus.Read(d.config.BusAddress, payload); err != nil {
		return nil, fmt.Errorf("%s: read %d bytes: %w", cmd, expectedLength, err)
	}

	if !req.noFinalAck {
		status, err := d.readStatus()
		if err != nil {
			return nil, fmt.Errorf("%s: final status: %w", cmd, err)
		}
		if status != protocol.Ack {
			return nil, &protocol.ProtocolError{Stage: protocol.StageFinal, Command: cmd, Status: status}
		}
	}

	return payload, nil
}

// writeFrame writes one address or argument frame and requires an ACK.
func (d *Driver) writeFrame(cmd protocol.Command, stage protocol.Stage, frame []byte) error {
	if err := d.bus.Write(d.config.BusAddress, frame); err != nil {
		return fmt.Errorf("%s: write %s frame: %w", cmd, stage, err)
	}

	status, err := d.readStatus()
	if err != nil {
		return fmt.Errorf("%s: %s status: %w", cmd, stage, err)
	}

	if status != protocol.Ack {
		d.log.WithFields(logrus.Fields{"cmd": cmd, "stage": stage, "status": status}).Debug("frame rejected")
		return &protocol.ProtocolError{Stage: stage, Command: cmd, Status: status}
	}
	return nil
}

func (d *Driver) waitUntilDone() (protocol.Status, error) {
	var (
		last     protocol.Status
		observed bool
	)

	for attempt := 0; attempt < d.config.PollAttempts; attempt++ {
		status, err := d.readStatus()
		if errors.Is(err, hal.ErrNoDevice) {
			d.log.WithField("attempt", attempt).Debug("device not responding, retrying")
			d.config.Sleep(d.config.NoDeviceDelay)
			continue
		}
		if err != nil {
			return status, fmt.Errorf("poll status: %w", err)
		}

		last, observed = status, true
		if status != protocol.Busy {
			return status, nil
		}

		d.config.Sleep(d.config.BusyDelay)
	}

	if !observed {
		return last, fmt.Errorf("no status after %d attempts: %w", d.config.PollAttempts, hal.ErrNoDevice)
	}

	d.log.WithField("attempts", d.config.PollAttempts).Warn("still busy after polling budget")
	return last, nil
}

func (d *Driver) doOperation(cmd protocol.Command, argument []byte) (protocol.Status, error) {
	if err := d.sendCommand(cmd); err != nil {
		return 0, err
	}

	if err := d.bus.Write(d.config.BusAddress, protocol.AddXorCheck(argument)); err != nil {
		return 0, fmt.Errorf("%s: write argument: %w", cmd, err)
	}

	return d.waitUntilDone()
}

func (d *Driver) doubleAckOperation(cmd protocol.Command) (protocol.Status, error) {
	if err := d.sendCommand(cmd); err != nil {
		return 0, err
	}

	status, err := d.waitUntilDone()
	if err != nil || status != protocol.Ack {
		return status, err
	}

	return d.waitUntilDone()
}

func (d *Driver) readStatus() (protocol.Status, error) {
	var buf [1]byte
	if err := d.bus.Read(d.config.BusAddress, buf[:]); err != nil {
		return 0, err
	}
	return protocol.Status(buf[0]), nil
}
