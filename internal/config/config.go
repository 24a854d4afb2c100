// Package config holds the settings shared by all commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/bigbag/i2cboot/internal/bootloader"
	"github.com/bigbag/i2cboot/internal/protocol"
)

// Backends.
const (
	BackendI2CDev = "i2cdev"
	BackendRaspi  = "raspi"
)

// Environment fallbacks for flags left at their defaults.
const (
	EnvBus     = "I2CBOOT_BUS"
	EnvControl = "I2CBOOT_CONTROL"
	EnvBackend = "I2CBOOT_BACKEND"
)

// Config selects the adapter and tunes the protocol driver.
type Config struct {
	Backend string

	// i2cdev backend: bus node and optional serial port whose modem
	// outputs drive NRST and BOOT0.
	Bus         string
	Control     string
	ResetSignal string
	BootSignal  string

	// raspi backend: I2C bus number and header pins.
	BusNumber int
	BootPin   string
	ResetPin  string

	Address      uint16
	PollAttempts int
	ResetPulse   time.Duration

	Verbose  bool
	LogLevel string
}

// Default returns the defaults for a Raspberry Pi style setup on bus 1.
func Default() Config {
	return Config{
		Backend:      BackendI2CDev,
		Bus:          "/dev/i2c-1",
		ResetSignal:  "!dtr",
		BootSignal:   "rts",
		BusNumber:    1,
		BootPin:      "11",
		ResetPin:     "13",
		Address:      protocol.BootloaderAddress,
		PollAttempts: bootloader.DefaultPollAttempts,
		ResetPulse:   10 * time.Millisecond,
		LogLevel:     "info",
	}
}

// BindFlags registers the configuration flags on fs.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "adapter backend: i2cdev or raspi")
	fs.StringVarP(&c.Bus, "bus", "b", c.Bus, "i2c-dev bus node (env "+EnvBus+")")
	fs.StringVarP(&c.Control, "control", "c", c.Control, "serial port driving NRST/BOOT0 (env "+EnvControl+")")
	fs.StringVar(&c.ResetSignal, "reset-signal", c.ResetSignal, "modem signal on NRST, ! for inverted")
	fs.StringVar(&c.BootSignal, "boot-signal", c.BootSignal, "modem signal on BOOT0, ! for inverted")
	fs.IntVar(&c.BusNumber, "bus-number", c.BusNumber, "I2C bus number for the raspi backend")
	fs.StringVar(&c.BootPin, "boot-pin", c.BootPin, "header pin wired to BOOT0 (raspi)")
	fs.StringVar(&c.ResetPin, "reset-pin", c.ResetPin, "header pin wired to NRST (raspi)")
	fs.Uint16Var(&c.Address, "address-7bit", c.Address, "bootloader 7-bit bus address")
	fs.IntVar(&c.PollAttempts, "poll-attempts", c.PollAttempts, "status polls before giving up")
	fs.DurationVar(&c.ResetPulse, "reset-pulse", c.ResetPulse, "NRST low time")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "debug logging")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

// ApplyEnv fills settings whose flag was not given from the environment.
func (c *Config) ApplyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	apply := func(flag, env string, dst *string) {
		if fs != nil && fs.Changed(flag) {
			return
		}
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}

	apply("backend", EnvBackend, &c.Backend)
	apply("bus", EnvBus, &c.Bus)
	apply("control", EnvControl, &c.Control)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendI2CDev:
		if c.Bus == "" {
			return fmt.Errorf("bus node is required for the %s backend", c.Backend)
		}
	case BackendRaspi:
		if c.BusNumber < 0 {
			return fmt.Errorf("invalid bus number %d", c.BusNumber)
		}
		if c.BootPin == "" || c.ResetPin == "" {
			return fmt.Errorf("boot and reset pins are required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Address < 0x08 || c.Address > 0x77 {
		return fmt.Errorf("address 0x%02X outside 0x08-0x77", c.Address)
	}
	if c.PollAttempts <= 0 {
		return fmt.Errorf("poll attempts must be positive, got %d", c.PollAttempts)
	}
	if c.ResetPulse < 0 {
		return fmt.Errorf("negative reset pulse %s", c.ResetPulse)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the log level, forced to debug by Verbose.
func (c *Config) Level() (logrus.Level, error) {
	if c.Verbose {
		return logrus.DebugLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}

// ParseAddress parses a memory address such as 0x08000000 or 134217728.
func ParseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}
