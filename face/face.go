// Package face draws wall-clock time onto the two LED rings.
//
// The face is a state machine with two states.  In the normal state the
// second, minute, and hour each light one pixel.  At the top of the hour it
// enters a 5 second animation that chases a 10 pixel window around the
// minute ring, then falls back to the normal state.  A night schedule dims
// the whole display between two hours.
package face

import (
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jrockway/deskclock/timekeeper"
)

const (
	minuteLen = 60
	hourLen   = 12

	animationDuration = 5 * time.Second
	animationStep     = 100 * time.Millisecond

	// The animation window is a 10 pixel comet: second-colored head,
	// minute-colored middle, hour-colored tail.
	trailSecond = 3
	trailMinute = 3
	trailHour   = 4
)

var (
	nightMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "night_mode",
		Help: "1 when the display is dimmed for night, 0 otherwise",
	})

	faceDraws = promauto.NewCounter(prometheus.CounterOpts{
		Name: "face_draws",
		Help: "count of frames the clock face has drawn",
	})
)

// Ring is one circle of pixels, normally a segment of the strand.
type Ring interface {
	Len() int
	Write([]color.NRGBA) error
}

// Dimmer adjusts the brightness of the whole display.
type Dimmer interface {
	SetBrightness(uint8) error
}

// Palette holds the face's colors.
type Palette struct {
	Hour, Minute, Second, Overlap color.NRGBA
}

// NightSchedule dims the display to Level between StartHour and EndHour,
// and restores DayLevel outside them.  StartHour > EndHour wraps past
// midnight; StartHour == EndHour disables dimming.
type NightSchedule struct {
	StartHour, EndHour int
	Level, DayLevel    uint8
}

// Options configures a Face.
type Options struct {
	Palette Palette
	Night   NightSchedule
	// TestMode runs the hourly animation at the top of every minute.
	TestMode bool
	// Now is for tests; nil means time.Now.
	Now func() time.Time
}

// Face renders time onto the rings.  Methods are safe for concurrent use.
type Face struct {
	minutes, hours Ring
	dimmer         Dimmer
	now            func() time.Time

	mu       sync.Mutex
	palette  Palette
	night    NightSchedule
	testMode bool

	nightActive, nightSet bool

	drawn               bool
	lastH, lastM, lastS int

	animating bool
	animStart time.Time
	animPos   int
}

// New returns a Face drawing on the given rings.  The dimmer may be nil if
// brightness is managed elsewhere.
func New(minutes, hours Ring, dimmer Dimmer, opts Options) (*Face, error) {
	if got := minutes.Len(); got != minuteLen {
		return nil, fmt.Errorf("minute ring has %d pixels, want %d", got, minuteLen)
	}
	if got := hours.Len(); got != hourLen {
		return nil, fmt.Errorf("hour ring has %d pixels, want %d", got, hourLen)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Face{
		minutes:  minutes,
		hours:    hours,
		dimmer:   dimmer,
		now:      now,
		palette:  opts.Palette,
		night:    opts.Night,
		testMode: opts.TestMode,
	}, nil
}

// Render displays the provided wall time, advancing the animation if one is
// in progress.  Calling it more often than the time changes is cheap; frames
// that would not change the display are skipped.
func (f *Face) Render(w timekeeper.WallClock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if err := f.applyNightLocked(w.Hour); err != nil {
		return err
	}
	if f.animating && now.Sub(f.animStart) >= animationDuration {
		f.animating = false
		f.drawn = false
	}
	if !f.animating && w.Second == 0 && (w.Minute == 0 || f.testMode) && !f.sameTimeLocked(w) {
		f.animating = true
		f.animStart = now
		f.animPos = -1
		f.drawn = false
	}
	if f.animating {
		return f.drawAnimationLocked(now)
	}
	return f.drawTimeLocked(w)
}

func (f *Face) sameTimeLocked(w timekeeper.WallClock) bool {
	return f.drawn && f.lastH == w.Hour && f.lastM == w.Minute && f.lastS == w.Second
}

func (f *Face) drawTimeLocked(w timekeeper.WallClock) error {
	redrawMinutes := !f.drawn || w.Minute != f.lastM || w.Second != f.lastS
	redrawHours := !f.drawn || w.Hour != f.lastH
	if !redrawMinutes && !redrawHours {
		return nil
	}
	f.drawn = false
	if redrawMinutes {
		px := make([]color.NRGBA, minuteLen)
		if w.Minute == w.Second {
			px[w.Minute] = f.palette.Overlap
		} else {
			px[w.Minute] = f.palette.Minute
			px[w.Second] = f.palette.Second
		}
		if err := f.minutes.Write(px); err != nil {
			return fmt.Errorf("write minute ring: %w", err)
		}
	}
	if redrawHours {
		px := make([]color.NRGBA, hourLen)
		px[w.Hour%12] = f.palette.Hour
		if err := f.hours.Write(px); err != nil {
			return fmt.Errorf("write hour ring: %w", err)
		}
	}
	f.drawn = true
	f.lastH, f.lastM, f.lastS = w.Hour, w.Minute, w.Second
	faceDraws.Inc()
	return nil
}

func (f *Face) drawAnimationLocked(now time.Time) error {
	pos := int(now.Sub(f.animStart)/animationStep) % minuteLen
	if pos == f.animPos {
		return nil
	}
	entering := f.animPos < 0
	px := make([]color.NRGBA, minuteLen)
	i := pos
	for n := 0; n < trailSecond; n++ {
		px[i%minuteLen] = f.palette.Second
		i++
	}
	for n := 0; n < trailMinute; n++ {
		px[i%minuteLen] = f.palette.Minute
		i++
	}
	for n := 0; n < trailHour; n++ {
		px[i%minuteLen] = f.palette.Hour
		i++
	}
	if err := f.minutes.Write(px); err != nil {
		return fmt.Errorf("write animation frame: %w", err)
	}
	if entering {
		if err := f.hours.Write(make([]color.NRGBA, hourLen)); err != nil {
			return fmt.Errorf("blank hour ring: %w", err)
		}
	}
	f.animPos = pos
	faceDraws.Inc()
	return nil
}

// applyNightLocked adjusts brightness when the wall hour crosses a schedule
// boundary.  The level is only pushed on transitions, so manual brightness
// tweaks between them stick.
func (f *Face) applyNightLocked(hour int) error {
	active := nightHour(hour, f.night.StartHour, f.night.EndHour)
	if f.nightSet && active == f.nightActive {
		return nil
	}
	level := f.night.DayLevel
	if active {
		level = f.night.Level
	}
	if f.dimmer != nil {
		if err := f.dimmer.SetBrightness(level); err != nil {
			return fmt.Errorf("set brightness: %w", err)
		}
	}
	f.nightActive, f.nightSet = active, true
	if active {
		nightMetric.Set(1)
	} else {
		nightMetric.Set(0)
	}
	return nil
}

// nightHour reports whether hour h falls inside [start, end), treating
// start > end as a range that wraps past midnight.
func nightHour(h, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return h >= start && h < end
	}
	return h >= start || h < end
}

// SetTestMode changes whether the hourly animation also runs at the top of
// every minute.
func (f *Face) SetTestMode(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testMode = on
}

// TestMode reports whether test mode is on.
func (f *Face) TestMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.testMode
}

// SetNight replaces the night schedule.  The new level is applied on the
// next Render.
func (f *Face) SetNight(n NightSchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.night = n
	f.nightSet = false
}

// Night returns the current night schedule.
func (f *Face) Night() NightSchedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.night
}
