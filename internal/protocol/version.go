package protocol

import (
	"encoding/binary"
	"fmt"
)

// VersionInfo is the decoded reply of the GET command.
type VersionInfo struct {
	Version  byte
	Commands []Command
}

// ParseVersion decodes a GET reply: N, version, then N command codes.
// N counts the bytes that follow it, minus one.
func ParseVersion(blob []byte) (VersionInfo, error) {
	if len(blob) < 2 {
		return VersionInfo{}, fmt.Errorf("version reply too short: %d bytes", len(blob))
	}

	n := int(blob[0])
	if len(blob) < n+2 {
		return VersionInfo{}, fmt.Errorf("version reply truncated: length byte %d, have %d bytes", n, len(blob))
	}

	info := VersionInfo{Version: blob[1]}
	for _, b := range blob[2 : n+2] {
		info.Commands = append(info.Commands, Command(b))
	}
	return info, nil
}

// Supports reports whether the bootloader listed cmd in its GET reply.
func (v VersionInfo) Supports(cmd Command) bool {
	for _, c := range v.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// String renders the version as v<major>.<minor>.
func (v VersionInfo) String() string {
	return fmt.Sprintf("v%d.%d", v.Version>>4, v.Version&0x0F)
}

// ParseID decodes a GET_ID reply into the product ID.
func ParseID(blob []byte) (uint16, error) {
	if len(blob) != IDLength {
		return 0, fmt.Errorf("id reply length %d, want %d", len(blob), IDLength)
	}
	if blob[0] != 1 {
		return 0, fmt.Errorf("unexpected id length byte: %d", blob[0])
	}
	return binary.BigEndian.Uint16(blob[1:3]), nil
}
