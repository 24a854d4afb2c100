package protocol

import (
	"bytes"
	"testing"
)

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = 0x%02X, want 0x00", got)
	}
}

func TestChecksum_MultipleBytes(t *testing.T) {
	// 0x01 ^ 0x02 ^ 0x03 = 0x00
	if got := Checksum([]byte{0x01, 0x02, 0x03}); got != 0x00 {
		t.Errorf("Checksum = 0x%02X, want 0x00", got)
	}
	if got := Checksum([]byte{0x08, 0x00, 0x01, 0x00}); got != 0x09 {
		t.Errorf("Checksum = 0x%02X, want 0x09", got)
	}
}

func TestAddXorCheck_AppendsChecksum(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0xFF},
		{0xFF, 0xFF},
		{0x12, 0x34, 0x56, 0x78},
		bytes.Repeat([]byte{0xA5}, 256),
	}

	for _, in := range inputs {
		out := AddXorCheck(in)
		if len(out) != len(in)+1 {
			t.Fatalf("AddXorCheck(%d bytes) length = %d, want %d", len(in), len(out), len(in)+1)
		}
		if !bytes.Equal(out[:len(in)], in) {
			t.Errorf("AddXorCheck prefix = %v, want %v", out[:len(in)], in)
		}
		if out[len(in)] != Checksum(in) {
			t.Errorf("AddXorCheck trailer = 0x%02X, want 0x%02X", out[len(in)], Checksum(in))
		}
		// XOR over the whole frame cancels out
		if Checksum(out) != 0 {
			t.Errorf("Checksum(AddXorCheck(%v)) = 0x%02X, want 0x00", in, Checksum(out))
		}
	}
}

func TestAddXorCheck_DoesNotAlias(t *testing.T) {
	in := make([]byte, 2, 8)
	in[0], in[1] = 0x01, 0x02
	out := AddXorCheck(in)
	out[0] = 0xEE
	if in[0] != 0x01 {
		t.Errorf("AddXorCheck modified its input: %v", in)
	}
}

func TestCommandFrame_AllCommands(t *testing.T) {
	for c := 0; c < 256; c++ {
		frame := CommandFrame(Command(c))
		expected := []byte{byte(c), 0xFF ^ byte(c)}
		if !bytes.Equal(frame, expected) {
			t.Fatalf("CommandFrame(0x%02X) = %v, want %v", c, frame, expected)
		}
	}
}

func TestCountFrame(t *testing.T) {
	tests := []struct {
		n        byte
		expected []byte
	}{
		{0x00, []byte{0x00, 0xFF}},
		{0x0F, []byte{0x0F, 0xF0}},
		{0xFF, []byte{0xFF, 0x00}},
	}

	for _, tc := range tests {
		if got := CountFrame(tc.n); !bytes.Equal(got, tc.expected) {
			t.Errorf("CountFrame(0x%02X) = %v, want %v", tc.n, got, tc.expected)
		}
	}
}

func TestAddressFrame_BigEndian(t *testing.T) {
	frame := AddressFrame(0x08000100)
	expected := []byte{0x08, 0x00, 0x01, 0x00, 0x09}
	if !bytes.Equal(frame, expected) {
		t.Errorf("AddressFrame(0x08000100) = %v, want %v", frame, expected)
	}
}

func TestAddressFrame_Zero(t *testing.T) {
	frame := AddressFrame(0)
	if !bytes.Equal(frame, []byte{0, 0, 0, 0, 0}) {
		t.Errorf("AddressFrame(0) = %v, want all zero", frame)
	}
}

func TestWriteFrame_Format(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00}
	frame := WriteFrame(data)

	expected := []byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x03}
	if !bytes.Equal(frame, expected) {
		t.Errorf("WriteFrame(%v) = %v, want %v", data, frame, expected)
	}
}

func TestWriteFrame_FullBlock(t *testing.T) {
	data := make([]byte, MaxTransfer)
	for i := range data {
		data[i] = byte(i)
	}
	frame := WriteFrame(data)

	if len(frame) != MaxTransfer+2 {
		t.Fatalf("WriteFrame length = %d, want %d", len(frame), MaxTransfer+2)
	}
	if frame[0] != 0xFF {
		t.Errorf("WriteFrame length byte = 0x%02X, want 0xFF", frame[0])
	}
	if Checksum(frame) != 0 {
		t.Errorf("WriteFrame checksum does not cancel: 0x%02X", Checksum(frame))
	}
}
