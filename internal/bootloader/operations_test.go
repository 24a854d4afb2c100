package bootloader

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/bigbag/i2cboot/internal/protocol"
)

var versionBlob = []byte{
	0x12, 0x12,
	0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x32, 0x44, 0x45,
	0x63, 0x64, 0x73, 0x74, 0x82, 0x83, 0x92, 0x93, 0xA1,
}

func TestGetVersion_ReturnsBlob(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack).payload(versionBlob).status(protocol.Ack)
	d, _, _ := newTestDriver(bus)

	blob, err := d.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if !bytes.Equal(blob, versionBlob) {
		t.Errorf("GetVersion() = %v, want %v", blob, versionBlob)
	}
	if !bytes.Equal(bus.writes[0], []byte{0x00, 0xFF}) {
		t.Errorf("command frame = %v, want [0 255]", bus.writes[0])
	}
	bus.drained()
}

func TestVersion_Parsed(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack).payload(versionBlob).status(protocol.Ack)
	d, _, _ := newTestDriver(bus)

	info, err := d.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if info.String() != "v1.2" {
		t.Errorf("Version() = %s, want v1.2", info)
	}
	if !info.Supports(protocol.CmdNoStretchWriteMemory) {
		t.Error("Version() should list NS_WRITE_MEMORY")
	}
}

func TestGetVersion_NotInBootloader(t *testing.T) {
	bus := newFakeBus(t).status(0xFF)
	d, _, _ := newTestDriver(bus)

	if _, err := d.GetVersion(); !protocol.IsProtocolError(err) {
		t.Errorf("GetVersion() error = %v, want ProtocolError", err)
	}
}

func TestGetID(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack).payload([]byte{0x01, 0x04, 0x66}).status(protocol.Ack)
	d, _, _ := newTestDriver(bus)

	pid, err := d.GetID()
	if err != nil {
		t.Fatalf("GetID() error = %v", err)
	}
	if pid != 0x0466 {
		t.Errorf("GetID() = 0x%04X, want 0x0466", pid)
	}
	if !bytes.Equal(bus.writes[0], []byte{0x02, 0xFD}) {
		t.Errorf("command frame = %v, want [2 253]", bus.writes[0])
	}
}

func TestBulkErase(t *testing.T) {
	tests := []struct {
		final    protocol.Status
		expected bool
	}{
		{protocol.Ack, true},
		{protocol.Nack, false},
	}

	for _, tc := range tests {
		bus := newFakeBus(t).status(protocol.Ack, protocol.Busy, protocol.Busy, tc.final)
		d, _, _ := newTestDriver(bus)

		ok, err := d.BulkErase()
		if err != nil {
			t.Fatalf("BulkErase() error = %v", err)
		}
		if ok != tc.expected {
			t.Errorf("BulkErase() with final %s = %v, want %v", tc.final, ok, tc.expected)
		}

		expected := [][]byte{{0x45, 0xBA}, {0xFF, 0xFF, 0x00}}
		if !reflect.DeepEqual(bus.writes, expected) {
			t.Errorf("writes = %v, want %v", bus.writes, expected)
		}
	}
}

func TestBulkErase_StillBusyIsFailure(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Busy, protocol.Busy)
	d, _, _ := newTestDriver(bus, WithPollAttempts(2))

	ok, err := d.BulkErase()
	if err != nil || ok {
		t.Errorf("BulkErase() = %v, %v; want false, nil", ok, err)
	}
}

func TestReadoutProtect(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Ack)
	d, _, _ := newTestDriver(bus)

	status, err := d.ReadoutProtect()
	if err != nil || status != protocol.Ack {
		t.Fatalf("ReadoutProtect() = %s, %v; want ACK, nil", status, err)
	}
	if !bytes.Equal(bus.writes[0], []byte{0x83, 0x7C}) {
		t.Errorf("command frame = %v, want [131 124]", bus.writes[0])
	}
}

func TestReadoutUnprotect(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Busy, protocol.Ack)
	d, _, _ := newTestDriver(bus)

	status, err := d.ReadoutUnprotect()
	if err != nil || status != protocol.Ack {
		t.Fatalf("ReadoutUnprotect() = %s, %v; want ACK, nil", status, err)
	}
	if !bytes.Equal(bus.writes[0], []byte{0x93, 0x6C}) {
		t.Errorf("command frame = %v, want [147 108]", bus.writes[0])
	}
	bus.drained()
}

func TestReadAt_Exchange(t *testing.T) {
	data := []byte{0x00, 0x50, 0x00, 0x20, 0xC1, 0x00, 0x00, 0x08}
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Ack).payload(data)
	d, _, _ := newTestDriver(bus)

	got, err := d.ReadAt(protocol.FlashStart+1, len(data))
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadAt() = %v, want %v", got, data)
	}

	expected := [][]byte{
		{0x11, 0xEE},
		{0x08, 0x00, 0x00, 0x01, 0x09},
		{0x07, 0xF8},
	}
	if !reflect.DeepEqual(bus.writes, expected) {
		t.Errorf("writes = %v, want %v", bus.writes, expected)
	}
	// no trailing status after the payload
	bus.drained()
	if len(bus.reads) != 4 {
		t.Errorf("reads = %v, want 4", bus.reads)
	}
}

func TestReadAt_MaxLength(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, protocol.MaxTransfer)
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Ack).payload(data)
	d, _, _ := newTestDriver(bus)

	if _, err := d.ReadAt(protocol.FlashStart, protocol.MaxTransfer); err != nil {
		t.Fatalf("ReadAt(256) error = %v", err)
	}
	if !bytes.Equal(bus.writes[2], []byte{0xFF, 0x00}) {
		t.Errorf("count frame = %v, want [255 0]", bus.writes[2])
	}
}

func TestReadAt_PreconditionBeforeBusTraffic(t *testing.T) {
	for _, length := range []int{0, -1, 257, 300} {
		bus := newFakeBus(t)
		d, _, _ := newTestDriver(bus)

		_, err := d.ReadAt(protocol.FlashStart, length)
		var pe *protocol.PreconditionError
		if !errors.As(err, &pe) {
			t.Errorf("ReadAt(length=%d) error = %v, want PreconditionError", length, err)
		}
		if bus.calls() != 0 {
			t.Errorf("ReadAt(length=%d) made %d bus calls, want 0", length, bus.calls())
		}
	}
}

func TestReadAt_BadAddress(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Nack)
	d, _, _ := newTestDriver(bus)

	_, err := d.ReadAt(0x00000000, 16)
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) || pe.Stage != protocol.StageAddress {
		t.Errorf("ReadAt() error = %v, want address-stage ProtocolError", err)
	}
}

func TestWriteAt_Success(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Ack)
	d, _, _ := newTestDriver(bus)

	ok, err := d.WriteAt(0x08000100, make([]byte, 4))
	if err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if !ok {
		t.Error("WriteAt() = false, want true")
	}

	expected := [][]byte{
		{0x32, 0xCD},
		{0x08, 0x00, 0x01, 0x00, 0x09},
		{0x03, 0x00, 0x00, 0x00, 0x00, 0x03},
	}
	if !reflect.DeepEqual(bus.writes, expected) {
		t.Errorf("writes = %v, want %v", bus.writes, expected)
	}
	bus.drained()
}

func TestWriteAt_BusyThenNack(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack, protocol.Busy, protocol.Nack)
	d, _, _ := newTestDriver(bus)

	ok, err := d.WriteAt(protocol.FlashStart, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil || ok {
		t.Errorf("WriteAt() = %v, %v; want false, nil", ok, err)
	}
}

func TestWriteAt_PreconditionBeforeBusTraffic(t *testing.T) {
	tests := []struct {
		name    string
		address uint32
		length  int
	}{
		{"empty", protocol.FlashStart, 0},
		{"too long", protocol.FlashStart, 260},
		{"way too long", protocol.FlashStart, 300},
		{"unaligned length", protocol.FlashStart, 6},
		{"unaligned address", protocol.FlashStart + 2, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bus := newFakeBus(t)
			d, _, _ := newTestDriver(bus)

			_, err := d.WriteAt(tc.address, make([]byte, tc.length))
			if !protocol.IsPreconditionError(err) {
				t.Errorf("WriteAt() error = %v, want PreconditionError", err)
			}
			if bus.calls() != 0 {
				t.Errorf("WriteAt() made %d bus calls, want 0", bus.calls())
			}
		})
	}
}

func TestWriteAt_CommandRejected(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Nack)
	d, _, _ := newTestDriver(bus)

	_, err := d.WriteAt(protocol.FlashStart, make([]byte, 4))
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) || pe.Command != protocol.CmdNoStretchWriteMemory {
		t.Errorf("WriteAt() error = %v, want ProtocolError for NS_WRITE_MEMORY", err)
	}
	if len(bus.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(bus.writes))
	}
}

func TestRunAt(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Ack)
	d, _, _ := newTestDriver(bus)

	if err := d.RunAt(protocol.FlashStart); err != nil {
		t.Fatalf("RunAt() error = %v", err)
	}

	expected := [][]byte{{0x21, 0xDE}, {0x08, 0x00, 0x00, 0x00, 0x08}}
	if !reflect.DeepEqual(bus.writes, expected) {
		t.Errorf("writes = %v, want %v", bus.writes, expected)
	}
	bus.drained()
}

func TestRunAt_BadAddress(t *testing.T) {
	bus := newFakeBus(t).status(protocol.Ack, protocol.Nack)
	d, _, _ := newTestDriver(bus)

	if err := d.RunAt(0x12345678); !protocol.IsProtocolError(err) {
		t.Errorf("RunAt() error = %v, want ProtocolError", err)
	}
}
