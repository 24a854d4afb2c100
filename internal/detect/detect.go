// Package detect finds the adapters a bootloader can be reached through.
package detect

import (
	"fmt"

	"github.com/bigbag/i2cboot/internal/i2cdev"
	"github.com/bigbag/i2cboot/internal/serial"
)

// Report lists what was found on the host.
type Report struct {
	Buses []string
	Ports []serial.PortInfo
}

// Empty reports whether nothing was found.
func (r *Report) Empty() bool {
	return len(r.Buses) == 0 && len(r.Ports) == 0
}

// Scanner holds the enumeration functions, replaceable in tests.
type Scanner struct {
	ListBuses func() ([]string, error)
	ListPorts func() ([]serial.PortInfo, error)
}

// NewScanner returns a scanner for the local host.
func NewScanner() *Scanner {
	return &Scanner{
		ListBuses: i2cdev.ListBuses,
		ListPorts: serial.ListPortDetails,
	}
}

// Scan lists I2C buses and serial ports. A failure to list one kind does
// not hide the other.
func (s *Scanner) Scan() (*Report, error) {
	report := &Report{}

	buses, busErr := s.ListBuses()
	if busErr == nil {
		report.Buses = buses
	}

	ports, portErr := s.ListPorts()
	if portErr == nil {
		report.Ports = ports
	}

	if busErr != nil && portErr != nil {
		return report, fmt.Errorf("failed to list buses: %v; failed to list ports: %w", busErr, portErr)
	}
	return report, nil
}

// Scan scans the local host.
func Scan() (*Report, error) {
	return NewScanner().Scan()
}

// Describe formats a port for listing.
func Describe(p serial.PortInfo) string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.Serial != "" {
		s += " sn=" + p.Serial
	}
	return s
}
