// Package rtc talks to the battery-backed real-time clock that keeps wall
// time across power cuts, and turns its 1 Hz square wave into tick events.
package rtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Device is the clock peripheral contract: read the current wall time, or
// set it after a successful network sync.
type Device interface {
	Now() (time.Time, error)
	Set(time.Time) error
}

// ErrHalted means the DS1307 oscillator is stopped: the chip has power but
// has never been set (or the backup battery died).  The time registers are
// meaningless until Set is called.
var ErrHalted = errors.New("rtc: oscillator halted, time was never set")

const (
	// Addr is the DS1307's fixed I2C address.
	Addr = 0x68

	regSeconds = 0x00
	regControl = 0x07

	// Control register value for a 1 Hz square wave on the SQW pin.
	sqw1Hz = 0x10

	haltBit   = 0x80 // seconds register bit 7
	mode12Bit = 0x40 // hours register bit 6
	pmBit     = 0x20 // hours register bit 5, only in 12-hour mode
)

// DS1307 drives the clock chip over I2C.  Time is stored on the chip as
// local wall-clock fields in a 2000-2099 century window.
type DS1307 struct {
	dev i2c.Dev
	loc *time.Location
}

// NewDS1307 probes the chip and enables the 1 Hz square wave output.  loc is
// the zone the on-chip wall time is interpreted in; nil means time.Local.
func NewDS1307(bus i2c.Bus, loc *time.Location) (*DS1307, error) {
	if loc == nil {
		loc = time.Local
	}
	d := &DS1307{dev: i2c.Dev{Bus: bus, Addr: Addr}, loc: loc}
	var probe [1]byte
	if err := d.dev.Tx([]byte{regSeconds}, probe[:]); err != nil {
		return nil, fmt.Errorf("probe ds1307: %w", err)
	}
	if err := d.dev.Tx([]byte{regControl, sqw1Hz}, nil); err != nil {
		return nil, fmt.Errorf("enable 1Hz square wave: %w", err)
	}
	return d, nil
}

// Now reads the seven time registers in one transaction.
func (d *DS1307) Now() (time.Time, error) {
	var buf [7]byte
	if err := d.dev.Tx([]byte{regSeconds}, buf[:]); err != nil {
		return time.Time{}, fmt.Errorf("read ds1307: %w", err)
	}
	if buf[0]&haltBit != 0 {
		return time.Time{}, ErrHalted
	}
	sec := bcdToDec(buf[0] & 0x7f)
	min := bcdToDec(buf[1] & 0x7f)
	hour := decodeHour(buf[2])
	day := bcdToDec(buf[4] & 0x3f)
	month := bcdToDec(buf[5] & 0x1f)
	year := 2000 + bcdToDec(buf[6])
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, d.loc), nil
}

// Set writes all seven registers, clears the halt bit, and always stores
// hours in 24-hour mode.
func (d *DS1307) Set(t time.Time) error {
	t = t.In(d.loc)
	if y := t.Year(); y < 2000 || y > 2099 {
		return fmt.Errorf("set ds1307: year %d outside the chip's 2000-2099 window", y)
	}
	buf := []byte{
		regSeconds,
		decToBCD(t.Second()),
		decToBCD(t.Minute()),
		decToBCD(t.Hour()),
		byte(t.Weekday()) + 1, // 1=Sunday, matching the register's 1-7 range
		decToBCD(t.Day()),
		decToBCD(int(t.Month())),
		decToBCD(t.Year() - 2000),
	}
	if err := d.dev.Tx(buf, nil); err != nil {
		return fmt.Errorf("write ds1307: %w", err)
	}
	return nil
}

func decodeHour(reg byte) int {
	if reg&mode12Bit != 0 {
		h := bcdToDec(reg&0x1f) % 12
		if reg&pmBit != 0 {
			h += 12
		}
		return h
	}
	return bcdToDec(reg & 0x3f)
}

func bcdToDec(b byte) int {
	return int(b>>4)*10 + int(b&0x0f)
}

func decToBCD(d int) byte {
	return byte(d/10)<<4 | byte(d%10)
}

// SystemClock is a Device backed by the host clock, for running the daemon
// on a machine without the clock chip attached.  Set records an offset
// instead of touching the host clock, so sync still has a visible effect.
type SystemClock struct {
	loc *time.Location

	mu     sync.Mutex
	offset time.Duration
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{loc: loc}
}

func (s *SystemClock) Now() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Add(s.offset).In(s.loc), nil
}

func (s *SystemClock) Set(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = time.Until(t)
	return nil
}
