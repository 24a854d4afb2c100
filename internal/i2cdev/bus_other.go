//go:build !linux

package i2cdev

import (
	"errors"
)

var errUnsupported = errors.New("i2c-dev is only available on Linux")

// Bus is a stub for non-Linux platforms.
type Bus struct{}

// Open always fails on non-Linux platforms.
func Open(path string) (*Bus, error) {
	return nil, errUnsupported
}

// Close is a stub.
func (b *Bus) Close() error {
	return errUnsupported
}

// Path is a stub.
func (b *Bus) Path() string {
	return ""
}

// Write is a stub.
func (b *Bus) Write(addr uint16, p []byte) error {
	return errUnsupported
}

// Read is a stub.
func (b *Bus) Read(addr uint16, p []byte) error {
	return errUnsupported
}
