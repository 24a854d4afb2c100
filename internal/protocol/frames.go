package protocol

import (
	"encoding/binary"
)

// Checksum returns the XOR of all bytes in data.
func Checksum(data []byte) byte {
	var checksum byte
	for _, b := range data {
		checksum ^= b
	}
	return checksum
}

// AddXorCheck returns a copy of data followed by its XOR checksum.
// XOR-ing every byte of the result yields zero.
func AddXorCheck(data []byte) []byte {
	frame := make([]byte, len(data)+1)
	copy(frame, data)
	frame[len(data)] = Checksum(data)
	return frame
}

// CommandFrame encodes a command byte followed by its complement.
func CommandFrame(cmd Command) []byte {
	return []byte{byte(cmd), 0xFF ^ byte(cmd)}
}

// CountFrame encodes a single byte-sized count argument.
func CountFrame(n byte) []byte {
	return []byte{n, 0xFF ^ n}
}

// AddressFrame encodes a 32-bit address big-endian with a trailing checksum.
func AddressFrame(address uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], address)
	return AddXorCheck(buf[:])
}

// WriteFrame builds the data frame of a write memory command:
// length-1, data, checksum.
func WriteFrame(data []byte) []byte {
	payload := make([]byte, 1+len(data))
	payload[0] = byte(len(data) - 1)
	copy(payload[1:], data)
	return AddXorCheck(payload)
}
