// Package i2cdev implements the bootloader bus on Linux i2c-dev nodes
// (/dev/i2c-N).
package i2cdev

import (
	"path/filepath"
	"sort"
)

// ListBuses returns the i2c-dev nodes present on this host.
func ListBuses() ([]string, error) {
	buses, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, err
	}
	sort.Strings(buses)
	return buses, nil
}
