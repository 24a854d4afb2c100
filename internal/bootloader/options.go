package bootloader

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/i2cboot/internal/protocol"
)

// Defaults for busy polling. 100 attempts at 20-50ms bound a single
// operation to roughly five seconds.
const (
	DefaultPollAttempts  = 100
	DefaultBusyDelay     = 20 * time.Millisecond
	DefaultNoDeviceDelay = 50 * time.Millisecond
)

// Config holds the driver configuration.
type Config struct {
	// BusAddress is the 7-bit I2C address of the ROM bootloader
	BusAddress uint16

	// PollAttempts bounds the number of status reads in WaitUntilDone
	PollAttempts int

	// BusyDelay is slept after each BUSY status
	BusyDelay time.Duration

	// NoDeviceDelay is slept after each read the device did not answer
	NoDeviceDelay time.Duration

	// ResetPulse is how long reset is held low; zero toggles back to back
	ResetPulse time.Duration

	// Sleep is used for every delay; tests replace it with a fake clock
	Sleep func(time.Duration)

	Logger logrus.FieldLogger
}

func defaultConfig() Config {
	return Config{
		BusAddress:    protocol.BootloaderAddress,
		PollAttempts:  DefaultPollAttempts,
		BusyDelay:     DefaultBusyDelay,
		NoDeviceDelay: DefaultNoDeviceDelay,
		Sleep:         time.Sleep,
		Logger:        logrus.StandardLogger(),
	}
}

// Option is a functional option for configuring the Driver.
type Option func(*Config)

// WithBusAddress overrides the bootloader's I2C address.
func WithBusAddress(addr uint16) Option {
	return func(c *Config) {
		c.BusAddress = addr
	}
}

// WithPollAttempts sets the status read budget of WaitUntilDone.
// Non-positive values are ignored.
func WithPollAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PollAttempts = n
		}
	}
}

// WithBusyDelay sets the pause after a BUSY status.
func WithBusyDelay(d time.Duration) Option {
	return func(c *Config) {
		c.BusyDelay = d
	}
}

// WithNoDeviceDelay sets the pause after the device failed to answer.
func WithNoDeviceDelay(d time.Duration) Option {
	return func(c *Config) {
		c.NoDeviceDelay = d
	}
}

// WithResetPulse sets how long reset is held low.
func WithResetPulse(d time.Duration) Option {
	return func(c *Config) {
		c.ResetPulse = d
	}
}

// WithSleep replaces time.Sleep, e.g. with a fake clock.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}

// WithLogger sets the logger used for frame-level tracing.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
