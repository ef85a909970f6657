// Package timekeeper owns the authoritative wall-clock time.  Everything
// else in the daemon reads copies of it; only the tick consumer and the
// network sync write it.
package timekeeper

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/jrockway/deskclock/rtc"
)

var (
	rtcReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtc_read_failures",
		Help: "count of failed reads of the clock chip on a tick",
	})

	timeValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "time_valid",
		Help: "1 once real-world time has been established by a network sync",
	})
)

// WallClock is one observation of the current time, broken into the fields
// the renderers consume.  Valid is false until the first successful network
// sync; the clock still displays whatever the RTC says in the meantime.
type WallClock struct {
	Hour, Minute, Second int
	Day, Month, Year     int
	Weekday              int // 1=Sunday through 7=Saturday
	Valid                bool
}

// FromTime converts a time.Time into wall-clock fields.
func FromTime(t time.Time, valid bool) WallClock {
	return WallClock{
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
		Day:     t.Day(),
		Month:   int(t.Month()),
		Year:    t.Year(),
		Weekday: int(t.Weekday()) + 1,
		Valid:   valid,
	}
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", w.Hour, w.Minute, w.Second)
}

// DateString is the wall clock's date in day/month/year order, the way the
// clock's own display formats it.
func (w WallClock) DateString() string {
	return fmt.Sprintf("%02d/%02d/%04d", w.Day, w.Month, w.Year)
}

// Keeper is the time authority.  Ticks arrive on a single-slot channel from
// the rtc package; Tick consumes at most one pending tick per call and
// refreshes the wall clock from the peripheral.
type Keeper struct {
	dev     rtc.Device
	pending <-chan time.Time
	logger  zerolog.Logger

	mu  sync.RWMutex
	cur WallClock
}

// New seeds the wall clock from the peripheral.  A halted or unreadable RTC
// is not fatal: the clock starts from zero and waits for a sync.
func New(dev rtc.Device, pending <-chan time.Time, logger zerolog.Logger) *Keeper {
	logger = logger.With().Str("component", "timekeeper").Logger()
	k := &Keeper{dev: dev, pending: pending, logger: logger}
	if t, err := dev.Now(); err != nil {
		logger.Warn().Err(err).Msg("rtc unreadable at startup; waiting for network sync")
	} else {
		k.cur = FromTime(t, false)
	}
	timeValid.Set(0)
	return k
}

// Tick consumes at most one pending hardware tick.  When none is pending it
// returns (false, nil) without touching the peripheral, so callers may
// invoke it as often as they like.  A read failure leaves the previous wall
// clock in place.
func (k *Keeper) Tick() (bool, error) {
	select {
	case <-k.pending:
	default:
		return false, nil
	}
	t, err := k.dev.Now()
	if err != nil {
		rtcReadFailures.Inc()
		return true, fmt.Errorf("read rtc: %w", err)
	}
	k.mu.Lock()
	k.cur = FromTime(t, k.cur.Valid)
	k.mu.Unlock()
	return true, nil
}

// SetFromEpoch converts a Unix timestamp to wall-clock fields in loc, writes
// the peripheral, and marks the time valid.  If the peripheral write fails
// the previous time is kept and validity does not change.
func (k *Keeper) SetFromEpoch(epoch int64, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(epoch, 0).In(loc)
	if err := k.dev.Set(t); err != nil {
		return fmt.Errorf("write rtc: %w", err)
	}
	k.mu.Lock()
	k.cur = FromTime(t, true)
	k.mu.Unlock()
	timeValid.Set(1)
	k.logger.Info().Time("time", t).Msg("wall clock set")
	return nil
}

// Snapshot returns a copy of the current wall clock.
func (k *Keeper) Snapshot() WallClock {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cur
}

// Valid reports whether real-world time has ever been established.
func (k *Keeper) Valid() bool {
	return k.Snapshot().Valid
}
