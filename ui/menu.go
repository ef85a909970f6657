package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/jrockway/deskclock/air"
	"github.com/jrockway/deskclock/face"
	"github.com/jrockway/deskclock/panel"
	"github.com/jrockway/deskclock/sensors"
	"github.com/jrockway/deskclock/timekeeper"
)

// DefaultTimeout is how long the menu waits for input before snapping back
// to the clock page.
const DefaultTimeout = 30 * time.Second

// Mode is a top-level page.  The mode button cycles through them in order.
type Mode int

const (
	ModeClock Mode = iota
	ModeSensors
	ModeNetwork
	ModeSettings
	numModes
)

func (m Mode) String() string {
	switch m {
	case ModeClock:
		return "clock"
	case ModeSensors:
		return "sensors"
	case ModeNetwork:
		return "network"
	case ModeSettings:
		return "settings"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// SensorPage is a sub-page of ModeSensors.
type SensorPage int

const (
	PageIndoorTemp SensorPage = iota
	PageOutdoorTemp
	PagePressure
	PageAirQuality
	numPages
)

type settingsItem int

const (
	itemNightStart settingsItem = iota
	itemNightEnd
	itemNightLevel
	itemSyncNow
	itemTestMode
	numItems
)

// levelSteps are the brightness choices the night-level item cycles through.
var levelSteps = []uint8{10, 25, 50, 100, 150, 200}

// Actions are the hooks the menu pulls when the user commits something.
type Actions struct {
	SyncNow     func()
	SetNight    func(face.NightSchedule)
	SetTestMode func(bool)
}

// Menu is the two-button state machine.
//
// The mode button moves to the next page, or increments the value being
// edited.  The select button acts within a page: next sensor view, or in
// settings it opens the item under the cursor (entering edit mode for
// values, firing actions immediately) and then moves the cursor on.
type Menu struct {
	actions Actions
	timeout time.Duration

	mu        sync.Mutex
	mode      Mode
	page      SensorPage
	cursor    settingsItem
	editing   bool
	night     face.NightSchedule
	testMode  bool
	lastInput time.Time
}

// NewMenu returns a Menu showing the clock page.  The night schedule and
// test mode seed what the settings page displays and edits.
func NewMenu(actions Actions, night face.NightSchedule, testMode bool) *Menu {
	return &Menu{actions: actions, night: night, testMode: testMode, timeout: DefaultTimeout}
}

// Handle applies one button press.
func (m *Menu) Handle(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInput = e.Time
	switch e.Kind {
	case ButtonMode:
		if m.editing {
			m.incrementLocked()
			return
		}
		m.mode = (m.mode + 1) % numModes
	case ButtonSelect:
		m.selectLocked()
	}
}

func (m *Menu) selectLocked() {
	switch m.mode {
	case ModeSensors:
		m.page = (m.page + 1) % numPages
	case ModeSettings:
		if m.editing {
			m.editing = false
			m.cursor = (m.cursor + 1) % numItems
			return
		}
		switch m.cursor {
		case itemNightStart, itemNightEnd, itemNightLevel:
			m.editing = true
		case itemSyncNow:
			if m.actions.SyncNow != nil {
				m.actions.SyncNow()
			}
			m.cursor = (m.cursor + 1) % numItems
		case itemTestMode:
			m.testMode = !m.testMode
			if m.actions.SetTestMode != nil {
				m.actions.SetTestMode(m.testMode)
			}
			m.cursor = (m.cursor + 1) % numItems
		}
	}
}

func (m *Menu) incrementLocked() {
	switch m.cursor {
	case itemNightStart:
		m.night.StartHour = (m.night.StartHour + 1) % 24
	case itemNightEnd:
		m.night.EndHour = (m.night.EndHour + 1) % 24
	case itemNightLevel:
		m.night.Level = nextLevel(m.night.Level)
	}
	if m.actions.SetNight != nil {
		m.actions.SetNight(m.night)
	}
}

func nextLevel(cur uint8) uint8 {
	for i, l := range levelSteps {
		if l == cur {
			return levelSteps[(i+1)%len(levelSteps)]
		}
	}
	return levelSteps[0]
}

// Expire snaps back to the clock page after the inactivity timeout.  Call
// it from the render loop with the current time.
func (m *Menu) Expire(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastInput.IsZero() || now.Sub(m.lastInput) < m.timeout {
		return
	}
	m.mode = ModeClock
	m.editing = false
}

// Mode returns the current page.
func (m *Menu) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// View is the data the menu renders from; the caller assembles it from the
// timekeeper, the sensor poller, and the sync status.
type View struct {
	Clock       timekeeper.WallClock
	Reading     sensors.Reading
	HaveReading bool
	IP          string
	LastSync    time.Time
}

// Render lays the current page out for the text panel.
func (m *Menu) Render(v View) panel.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case ModeSensors:
		return m.renderSensorsLocked(v)
	case ModeNetwork:
		return renderNetwork(v)
	case ModeSettings:
		return m.renderSettingsLocked()
	}
	return renderClock(v)
}

func renderClock(v View) panel.Page {
	status := "ntp never"
	if !v.LastSync.IsZero() {
		status = "ntp " + v.LastSync.Format("15:04")
	}
	if !v.Clock.Valid {
		status = "time not set"
	}
	return panel.Page{
		Title:  "CLOCK",
		Lines:  []string{v.Clock.String(), v.Clock.DateString(), status},
		Cursor: -1,
	}
}

func (m *Menu) renderSensorsLocked(v View) panel.Page {
	if !v.HaveReading {
		return panel.Page{Title: "SENSORS", Lines: []string{"no reading yet"}, Cursor: -1}
	}
	r := v.Reading
	switch m.page {
	case PageOutdoorTemp:
		if !r.HasOutdoor {
			return panel.Page{Title: "OUTDOOR", Lines: []string{"not attached"}, Cursor: -1}
		}
		return panel.Page{
			Title:  "OUTDOOR",
			Lines:  []string{fmt.Sprintf("temp  %.1f C", r.OutdoorTemp), fmt.Sprintf("humid %.0f %%", r.OutdoorHumidity)},
			Cursor: -1,
		}
	case PagePressure:
		return panel.Page{
			Title:  "PRESSURE",
			Lines:  []string{fmt.Sprintf("%.1f hPa", r.Pressure)},
			Cursor: -1,
		}
	case PageAirQuality:
		if !r.HasAir {
			return panel.Page{Title: "AIR", Lines: []string{"not attached"}, Cursor: -1}
		}
		return panel.Page{
			Title:  "AIR",
			Lines:  []string{fmt.Sprintf("%.0f ppm", r.AirPPM), air.LevelFor(r.AirPPM).String()},
			Cursor: -1,
		}
	}
	return panel.Page{
		Title:  "INDOOR",
		Lines:  []string{fmt.Sprintf("temp  %.1f C", r.IndoorTemp), fmt.Sprintf("humid %.0f %%", r.IndoorHumidity)},
		Cursor: -1,
	}
}

func renderNetwork(v View) panel.Page {
	ip := v.IP
	if ip == "" {
		ip = "no address"
	}
	last := "never"
	if !v.LastSync.IsZero() {
		last = v.LastSync.Format("15:04:05")
	}
	return panel.Page{
		Title:  "NETWORK",
		Lines:  []string{"ip " + ip, "sync " + last},
		Cursor: -1,
	}
}

func (m *Menu) renderSettingsLocked() panel.Page {
	onOff := "off"
	if m.testMode {
		onOff = "on"
	}
	lines := []string{
		fmt.Sprintf("night start %02d", m.night.StartHour),
		fmt.Sprintf("night end   %02d", m.night.EndHour),
		fmt.Sprintf("night level %d", m.night.Level),
		"sync now",
		"test mode " + onOff,
	}
	if m.editing {
		lines[m.cursor] += " *"
	}
	// Scroll so the cursor is always on screen.
	start := int(m.cursor) - (panel.MaxLines - 1)
	if start < 0 {
		start = 0
	}
	return panel.Page{
		Title:  "SETTINGS",
		Lines:  lines[start : start+panel.MaxLines],
		Cursor: int(m.cursor) - start,
	}
}
