package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrockway/deskclock/sensors"
)

var testReading = sensors.Reading{
	Time:            time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC),
	IndoorTemp:      22.54,
	IndoorHumidity:  45,
	Pressure:        1013.21,
	OutdoorTemp:     17,
	OutdoorHumidity: 60,
	AirPPM:          55.4,
	HasOutdoor:      true,
	HasAir:          true,
}

func TestMessages(t *testing.T) {
	got := messages("clock", testReading)
	want := map[string]string{
		"clock/indoor/temperature":  "22.5",
		"clock/indoor/humidity":     "45.0",
		"clock/indoor/pressure":     "1013.2",
		"clock/outdoor/temperature": "17.0",
		"clock/outdoor/humidity":    "60.0",
		"clock/air/ppm":             "55",
	}
	if len(got) != len(want) {
		t.Errorf("topics:\n  got: %v\n want: %v", got, want)
	}
	for topic, payload := range want {
		if got[topic] != payload {
			t.Errorf("%s:\n  got: %v\n want: %v", topic, got[topic], payload)
		}
	}
}

func TestMessagesSkipMissingSensors(t *testing.T) {
	r := testReading
	r.HasOutdoor, r.HasAir = false, false
	got := messages("clock", r)
	if got, want := len(got), 3; got != want {
		t.Errorf("topics for an indoor-only reading:\n  got: %v\n want: %v", got, want)
	}
	for _, topic := range []string{"clock/outdoor/temperature", "clock/air/ppm"} {
		if _, ok := got[topic]; ok {
			t.Errorf("%s published for a sensor that is not attached", topic)
		}
	}
}

func TestStatusPayload(t *testing.T) {
	b, err := json.Marshal(statusPayload(testReading))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, want := m["time"], "2025-08-24T12:00:00Z"; got != want {
		t.Errorf("time:\n  got: %v\n want: %v", got, want)
	}
	if got, want := m["indoor_temperature"], 22.54; got != want {
		t.Errorf("indoor temperature:\n  got: %v\n want: %v", got, want)
	}
	if got, want := m["air_ppm"], 55.4; got != want {
		t.Errorf("air ppm:\n  got: %v\n want: %v", got, want)
	}
}

func TestDisabled(t *testing.T) {
	p, err := New(Opts{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Enabled() {
		t.Error("publisher with no broker claims to be enabled")
	}
	if err := p.Record(testReading); err != nil {
		t.Errorf("record on a disabled publisher: %v", err)
	}
	p.Close()
}
