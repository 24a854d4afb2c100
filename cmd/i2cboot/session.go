package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gobot.io/x/gobot/v2/platforms/raspi"

	"github.com/bigbag/i2cboot/internal/bootloader"
	"github.com/bigbag/i2cboot/internal/config"
	"github.com/bigbag/i2cboot/internal/gobotio"
	"github.com/bigbag/i2cboot/internal/hal"
	"github.com/bigbag/i2cboot/internal/i2cdev"
	"github.com/bigbag/i2cboot/internal/serial"
)

// session is an open adapter with a driver on it.
type session struct {
	driver  *bootloader.Driver
	closers []func() error
	log     logrus.FieldLogger
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.WithError(err).Warn("close failed")
		}
	}
}

// openSession validates cfg and opens the configured backend.
func openSession(cfg config.Config, logger logrus.FieldLogger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{log: logger}

	var (
		bus   hal.Bus
		boot  hal.Line
		reset hal.OutputLine
	)

	switch cfg.Backend {
	case config.BackendI2CDev:
		b, err := i2cdev.Open(cfg.Bus)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, b.Close)
		bus = b

		if cfg.Control != "" {
			port, err := serial.Open(cfg.Control)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.closers = append(s.closers, port.Close)

			resetSignal, resetInverted, err := serial.ParseSignal(cfg.ResetSignal)
			if err != nil {
				s.Close()
				return nil, err
			}
			bootSignal, bootInverted, err := serial.ParseSignal(cfg.BootSignal)
			if err != nil {
				s.Close()
				return nil, err
			}
			if resetSignal == bootSignal {
				s.Close()
				return nil, fmt.Errorf("reset and boot share the %s signal", resetSignal)
			}
			reset = port.Line(resetSignal, resetInverted)
			boot = port.Line(bootSignal, bootInverted)
			logger.WithFields(logrus.Fields{
				"port":  port.PortName(),
				"reset": cfg.ResetSignal,
				"boot":  cfg.BootSignal,
			}).Debug("control lines on serial port")
		}

	case config.BackendRaspi:
		adaptor := raspi.NewAdaptor()
		if err := adaptor.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect raspi adaptor: %w", err)
		}
		s.closers = append(s.closers, adaptor.Finalize)

		b := gobotio.NewBus(adaptor, cfg.BusNumber)
		s.closers = append(s.closers, b.Close)
		bus = b
		boot = gobotio.NewLine(adaptor, cfg.BootPin)
		reset = gobotio.NewLine(adaptor, cfg.ResetPin)

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	s.driver = bootloader.New(bus, boot, reset,
		bootloader.WithBusAddress(cfg.Address),
		bootloader.WithPollAttempts(cfg.PollAttempts),
		bootloader.WithResetPulse(cfg.ResetPulse),
		bootloader.WithLogger(logger),
	)
	return s, nil
}
