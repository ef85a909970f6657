package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/jrockway/deskclock/face"
	"github.com/jrockway/deskclock/sensors"
	"github.com/jrockway/deskclock/timekeeper"
)

var testNight = face.NightSchedule{StartHour: 22, EndHour: 7, Level: 50, DayLevel: 255}

type recordedActions struct {
	syncs  int
	nights []face.NightSchedule
	tests  []bool
}

func (r *recordedActions) actions() Actions {
	return Actions{
		SyncNow:     func() { r.syncs++ },
		SetNight:    func(n face.NightSchedule) { r.nights = append(r.nights, n) },
		SetTestMode: func(on bool) { r.tests = append(r.tests, on) },
	}
}

var testBase = time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)

func press(m *Menu, k Kind) {
	m.Handle(Event{Kind: k, Time: testBase})
}

func testView() View {
	return View{
		Clock: timekeeper.FromTime(time.Date(2025, 8, 24, 14, 30, 45, 0, time.UTC), true),
		Reading: sensors.Reading{
			IndoorTemp:      21.5,
			IndoorHumidity:  45,
			Pressure:        1013.2,
			OutdoorTemp:     17,
			OutdoorHumidity: 60,
			AirPPM:          120,
			HasOutdoor:      true,
			HasAir:          true,
		},
		HaveReading: true,
		IP:          "192.168.1.40",
		LastSync:    time.Date(2025, 8, 24, 6, 0, 0, 0, time.UTC),
	}
}

func TestModeCycle(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	want := []Mode{ModeClock, ModeSensors, ModeNetwork, ModeSettings, ModeClock}
	for i, w := range want {
		if got := m.Mode(); got != w {
			t.Errorf("mode after %d presses:\n  got: %v\n want: %v", i, got, w)
		}
		press(m, ButtonMode)
	}
}

func TestSensorPageCycle(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	press(m, ButtonMode) // sensors
	want := []string{"INDOOR", "OUTDOOR", "PRESSURE", "AIR", "INDOOR"}
	for i, w := range want {
		if got := m.Render(testView()).Title; got != w {
			t.Errorf("page after %d presses:\n  got: %v\n want: %v", i, got, w)
		}
		press(m, ButtonSelect)
	}
}

func TestRenderSensorPages(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	press(m, ButtonMode)
	page := m.Render(testView())
	if got, want := page.Lines[0], "temp  21.5 C"; got != want {
		t.Errorf("indoor line:\n  got: %v\n want: %v", got, want)
	}
	press(m, ButtonSelect)
	press(m, ButtonSelect)
	press(m, ButtonSelect) // air
	page = m.Render(testView())
	if got, want := page.Lines[0], "120 ppm"; got != want {
		t.Errorf("air line:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[1], "moderate"; got != want {
		t.Errorf("air level line:\n  got: %v\n want: %v", got, want)
	}
}

func TestRenderSensorsWithoutHardware(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	press(m, ButtonMode)
	v := testView()
	v.HaveReading = false
	if got, want := m.Render(v).Lines[0], "no reading yet"; got != want {
		t.Errorf("sensors page before the first sweep:\n  got: %v\n want: %v", got, want)
	}
	v = testView()
	v.Reading.HasOutdoor = false
	press(m, ButtonSelect) // outdoor
	if got, want := m.Render(v).Lines[0], "not attached"; got != want {
		t.Errorf("outdoor page without a sensor:\n  got: %v\n want: %v", got, want)
	}
}

func TestSettingsEditNightStart(t *testing.T) {
	rec := &recordedActions{}
	m := NewMenu(rec.actions(), testNight, false)
	for i := 0; i < 3; i++ {
		press(m, ButtonMode)
	}
	page := m.Render(testView())
	if got, want := page.Title, "SETTINGS"; got != want {
		t.Fatalf("title:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[0], "night start 22"; got != want {
		t.Errorf("start line:\n  got: %v\n want: %v", got, want)
	}

	press(m, ButtonSelect) // edit
	if got := m.Render(testView()).Lines[0]; !strings.HasSuffix(got, "*") {
		t.Errorf("editing line is not marked: %q", got)
	}
	press(m, ButtonMode)
	press(m, ButtonMode)
	if got, want := len(rec.nights), 2; got != want {
		t.Fatalf("night updates:\n  got: %v\n want: %v", got, want)
	}
	if got, want := rec.nights[0].StartHour, 23; got != want {
		t.Errorf("first increment:\n  got: %v\n want: %v", got, want)
	}
	if got, want := rec.nights[1].StartHour, 0; got != want {
		t.Errorf("wrapped increment:\n  got: %v\n want: %v", got, want)
	}

	press(m, ButtonSelect) // commit, cursor to night end
	page = m.Render(testView())
	if got, want := page.Cursor, 1; got != want {
		t.Errorf("cursor after committing:\n  got: %v\n want: %v", got, want)
	}
	if strings.HasSuffix(page.Lines[1], "*") {
		t.Errorf("still editing after commit: %q", page.Lines[1])
	}
	// Mode leaves settings again once editing is done.
	press(m, ButtonMode)
	if got, want := m.Mode(), ModeClock; got != want {
		t.Errorf("mode after leaving settings:\n  got: %v\n want: %v", got, want)
	}
}

func TestSettingsActions(t *testing.T) {
	rec := &recordedActions{}
	m := NewMenu(rec.actions(), testNight, false)
	for i := 0; i < 3; i++ {
		press(m, ButtonMode)
	}
	// Walk past the three editable values to the action items.
	for i := 0; i < 6; i++ {
		press(m, ButtonSelect)
	}
	page := m.Render(testView())
	if got, want := page.Lines[page.Cursor], "sync now"; got != want {
		t.Fatalf("cursor line:\n  got: %v\n want: %v", got, want)
	}
	press(m, ButtonSelect)
	if got, want := rec.syncs, 1; got != want {
		t.Errorf("sync calls:\n  got: %v\n want: %v", got, want)
	}

	page = m.Render(testView())
	if got, want := page.Lines[page.Cursor], "test mode off"; got != want {
		t.Fatalf("cursor line:\n  got: %v\n want: %v", got, want)
	}
	press(m, ButtonSelect)
	if len(rec.tests) != 1 || !rec.tests[0] {
		t.Errorf("test mode toggles:\n  got: %v\n want: [true]", rec.tests)
	}
	page = m.Render(testView())
	if got, want := page.Cursor, 0; got != want {
		t.Errorf("cursor after wrapping:\n  got: %v\n want: %v", got, want)
	}
}

func TestNightLevelCycle(t *testing.T) {
	rec := &recordedActions{}
	m := NewMenu(rec.actions(), testNight, false)
	for i := 0; i < 3; i++ {
		press(m, ButtonMode)
	}
	for i := 0; i < 4; i++ {
		press(m, ButtonSelect) // edit start, commit, edit end, commit
	}
	press(m, ButtonSelect) // edit level
	press(m, ButtonMode)
	press(m, ButtonMode)
	n := len(rec.nights)
	if n < 2 {
		t.Fatalf("night updates:\n  got: %v\n want: at least 2", n)
	}
	if got, want := rec.nights[n-2].Level, uint8(100); got != want {
		t.Errorf("level after one step:\n  got: %v\n want: %v", got, want)
	}
	if got, want := rec.nights[n-1].Level, uint8(150); got != want {
		t.Errorf("level after two steps:\n  got: %v\n want: %v", got, want)
	}
}

func TestNextLevel(t *testing.T) {
	tests := []struct {
		cur, want uint8
	}{
		{10, 25},
		{50, 100},
		{200, 10},
		{255, 10},
		{0, 10},
	}
	for _, test := range tests {
		if got := nextLevel(test.cur); got != test.want {
			t.Errorf("nextLevel(%d):\n  got: %v\n want: %v", test.cur, got, test.want)
		}
	}
}

func TestTimeout(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	press(m, ButtonMode) // sensors
	m.Expire(testBase.Add(29 * time.Second))
	if got, want := m.Mode(), ModeSensors; got != want {
		t.Errorf("mode before the timeout:\n  got: %v\n want: %v", got, want)
	}
	m.Expire(testBase.Add(30 * time.Second))
	if got, want := m.Mode(), ModeClock; got != want {
		t.Errorf("mode after the timeout:\n  got: %v\n want: %v", got, want)
	}
}

func TestTimeoutLeavesEditMode(t *testing.T) {
	rec := &recordedActions{}
	m := NewMenu(rec.actions(), testNight, false)
	for i := 0; i < 3; i++ {
		press(m, ButtonMode)
	}
	press(m, ButtonSelect) // editing night start
	m.Expire(testBase.Add(time.Minute))
	if got, want := m.Mode(), ModeClock; got != want {
		t.Errorf("mode after the timeout:\n  got: %v\n want: %v", got, want)
	}
	// A mode press now cycles pages instead of editing.
	press(m, ButtonMode)
	if got, want := m.Mode(), ModeSensors; got != want {
		t.Errorf("mode after a press:\n  got: %v\n want: %v", got, want)
	}
	if got, want := len(rec.nights), 0; got != want {
		t.Errorf("night updates:\n  got: %v\n want: %v", got, want)
	}
}

func TestExpireBeforeAnyInput(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	m.Expire(testBase)
	if got, want := m.Mode(), ModeClock; got != want {
		t.Errorf("mode:\n  got: %v\n want: %v", got, want)
	}
}

func TestRenderClock(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	page := m.Render(testView())
	if got, want := page.Title, "CLOCK"; got != want {
		t.Errorf("title:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[0], "14:30:45"; got != want {
		t.Errorf("time line:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[1], "24/08/2025"; got != want {
		t.Errorf("date line:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[2], "ntp 06:00"; got != want {
		t.Errorf("sync line:\n  got: %v\n want: %v", got, want)
	}

	v := testView()
	v.Clock.Valid = false
	if got, want := m.Render(v).Lines[2], "time not set"; got != want {
		t.Errorf("sync line before first sync:\n  got: %v\n want: %v", got, want)
	}
}

func TestRenderNetwork(t *testing.T) {
	m := NewMenu(Actions{}, testNight, false)
	press(m, ButtonMode)
	press(m, ButtonMode)
	page := m.Render(testView())
	if got, want := page.Title, "NETWORK"; got != want {
		t.Errorf("title:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[0], "ip 192.168.1.40"; got != want {
		t.Errorf("ip line:\n  got: %v\n want: %v", got, want)
	}

	v := testView()
	v.IP = ""
	v.LastSync = time.Time{}
	page = m.Render(v)
	if got, want := page.Lines[0], "ip no address"; got != want {
		t.Errorf("ip line without an address:\n  got: %v\n want: %v", got, want)
	}
	if got, want := page.Lines[1], "sync never"; got != want {
		t.Errorf("sync line before first sync:\n  got: %v\n want: %v", got, want)
	}
}
