// Package firmware loads images to program: Intel HEX files or raw binaries
// placed at a base address.
package firmware

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Region is a contiguous block of image data.
type Region struct {
	Address uint32
	Data    []byte
	Name    string
}

// End returns the first address past the region.
func (r Region) End() uint32 {
	return r.Address + uint32(len(r.Data))
}

// Image is a firmware image split into regions, sorted by address.
type Image struct {
	Regions []Region
	// Entry is the start address from the file, when it carries one.
	Entry    uint32
	HasEntry bool
}

// Size returns the total number of data bytes.
func (img *Image) Size() int {
	n := 0
	for _, r := range img.Regions {
		n += len(r.Data)
	}
	return n
}

// Checksum returns the CRC-16/CCITT-FALSE over all regions in order.
func (img *Image) Checksum() uint16 {
	all := make([]byte, 0, img.Size())
	for _, r := range img.Regions {
		all = append(all, r.Data...)
	}
	return crc16.Checksum(all, crcTable)
}

// CRC16 returns the CRC-16/CCITT-FALSE of data.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// IsHex reports whether path names an Intel HEX file.
func IsHex(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		return true
	}
	return false
}

// Load reads path. HEX files carry their own addresses; anything else is
// treated as a raw binary placed at base.
func Load(path string, base uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware: %w", err)
	}

	if IsHex(path) {
		img, err := ParseHex(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}

	return FromBinary(filepath.Base(path), data, base)
}

// FromBinary wraps a raw image placed at base.
func FromBinary(name string, data []byte, base uint32) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty image", name)
	}
	return &Image{
		Regions: []Region{{Address: base, Data: data, Name: name}},
	}, nil
}

// ParseHex decodes an Intel HEX image.
func ParseHex(data []byte) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("hex file has no data")
	}

	img := &Image{}
	for i, seg := range segments {
		img.Regions = append(img.Regions, Region{
			Address: seg.Address,
			Data:    seg.Data,
			Name:    fmt.Sprintf("segment %d", i),
		})
	}
	img.Entry, img.HasEntry = mem.GetStartAddress()
	return img, nil
}

// DumpHex writes regions as Intel HEX.
func DumpHex(path string, regions []Region) error {
	mem := gohex.NewMemory()
	for _, r := range regions {
		if err := mem.AddBinary(r.Address, r.Data); err != nil {
			return fmt.Errorf("add region at 0x%08X: %w", r.Address, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := mem.DumpIntelHex(f, 16); err != nil {
		return fmt.Errorf("write hex: %w", err)
	}
	return f.Close()
}
