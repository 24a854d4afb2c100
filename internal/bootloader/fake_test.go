package bootloader

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/i2cboot/internal/hal"
	"github.com/bigbag/i2cboot/internal/protocol"
)

// reply is one scripted answer to a Bus.Read call
type reply struct {
	data []byte
	err  error
}

// fakeBus simulates the bootloader side of the bus. Reads are answered from
// a script in order; writes are recorded.
type fakeBus struct {
	t       *testing.T
	writes  [][]byte
	reads   []int
	replies []reply
	addrs   []uint16
}

func newFakeBus(t *testing.T) *fakeBus {
	return &fakeBus{t: t}
}

func (b *fakeBus) Write(addr uint16, p []byte) error {
	b.addrs = append(b.addrs, addr)
	b.writes = append(b.writes, append([]byte(nil), p...))
	return nil
}

func (b *fakeBus) Read(addr uint16, p []byte) error {
	b.addrs = append(b.addrs, addr)
	b.reads = append(b.reads, len(p))
	if len(b.replies) == 0 {
		return fmt.Errorf("unexpected read of %d bytes", len(p))
	}

	r := b.replies[0]
	b.replies = b.replies[1:]
	if r.err != nil {
		return r.err
	}
	if len(r.data) != len(p) {
		return fmt.Errorf("scripted %d bytes, read asked for %d", len(r.data), len(p))
	}
	copy(p, r.data)
	return nil
}

// status queues single status bytes
func (b *fakeBus) status(statuses ...protocol.Status) *fakeBus {
	for _, s := range statuses {
		b.replies = append(b.replies, reply{data: []byte{byte(s)}})
	}
	return b
}

func (b *fakeBus) payload(data []byte) *fakeBus {
	b.replies = append(b.replies, reply{data: data})
	return b
}

func (b *fakeBus) fail(err error) *fakeBus {
	b.replies = append(b.replies, reply{err: err})
	return b
}

func (b *fakeBus) calls() int {
	return len(b.writes) + len(b.reads)
}

// drained fails the test if scripted replies were left unread.
func (b *fakeBus) drained() {
	b.t.Helper()
	if len(b.replies) != 0 {
		b.t.Errorf("%d scripted replies left unread", len(b.replies))
	}
}

// fakeClock records requested sleeps without sleeping.
type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

// fakeLine records line transitions as strings like "boot:output" or
// "reset:low".
type fakeLine struct {
	name   string
	events *[]string
	level  bool
	mode   hal.Mode
	err    error
}

func (l *fakeLine) Set(high bool) error {
	if l.err != nil {
		return l.err
	}
	l.level = high
	if high {
		*l.events = append(*l.events, l.name+":high")
	} else {
		*l.events = append(*l.events, l.name+":low")
	}
	return nil
}

func (l *fakeLine) SetMode(m hal.Mode) error {
	if l.err != nil {
		return l.err
	}
	l.mode = m
	*l.events = append(*l.events, l.name+":"+m.String())
	return nil
}

func (l *fakeLine) Get() (bool, error) {
	return l.level, l.err
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestDriver returns a driver on bus with a fake clock and recording
// control lines.
func newTestDriver(bus hal.Bus, opts ...Option) (*Driver, *fakeClock, *[]string) {
	clock := &fakeClock{}
	events := &[]string{}
	boot := &fakeLine{name: "boot", events: events}
	reset := &fakeLine{name: "reset", events: events, level: true}

	opts = append([]Option{WithSleep(clock.Sleep), WithLogger(quietLogger())}, opts...)
	return New(bus, boot, reset, opts...), clock, events
}
