package store

import (
	"testing"
	"time"

	"github.com/jrockway/deskclock/sensors"
)

func TestRecord(t *testing.T) {
	db, err := Open(":memory:", 0)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	r := sensors.Reading{
		Time:            time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC),
		IndoorTemp:      22.5,
		IndoorHumidity:  45,
		Pressure:        1013.2,
		OutdoorTemp:     17,
		OutdoorHumidity: 60,
		AirPPM:          55,
		HasOutdoor:      true,
		HasAir:          true,
	}
	if err := db.Record(r); err != nil {
		t.Errorf("record: %v", err)
	}

	c, err := db.single("select count(1) from reading")
	if err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if got, want := c, 2; got != want {
		t.Errorf("unexpected number of rows:\n  got: %d\n want: %d", got, want)
	}

	c, err = db.single("select count(1) from reading where location = 'outdoor' and air_ppm is null")
	if err != nil {
		t.Fatalf("count outdoor rows: %v", err)
	}
	if got, want := c, 1; got != want {
		t.Errorf("unexpected number of outdoor rows:\n  got: %d\n want: %d", got, want)
	}
}

func TestThrottle(t *testing.T) {
	db, err := Open(":memory:", 5*time.Minute)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	base := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 30 * time.Second, 2 * time.Minute, 6 * time.Minute} {
		r := sensors.Reading{Time: base.Add(offset), IndoorTemp: 20}
		if err := db.Record(r); err != nil {
			t.Errorf("record at +%v: %v", offset, err)
		}
	}

	c, err := db.single("select count(1) from reading")
	if err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if got, want := c, 2; got != want {
		t.Errorf("unexpected number of rows:\n  got: %d\n want: %d", got, want)
	}
}

func TestRecent(t *testing.T) {
	db, err := Open(":memory:", 0)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	base := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := sensors.Reading{
			Time:       base.Add(time.Duration(i) * time.Hour),
			IndoorTemp: 20 + float64(i),
			Pressure:   1000 + float64(i),
		}
		if err := db.Record(r); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	rows, err := db.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if got, want := len(rows), 2; got != want {
		t.Fatalf("unexpected number of rows:\n  got: %d\n want: %d", got, want)
	}
	if got, want := rows[0].Temperature, 22.0; got != want {
		t.Errorf("newest row temperature:\n  got: %v\n want: %v", got, want)
	}
	if got, want := rows[1].Temperature, 21.0; got != want {
		t.Errorf("second row temperature:\n  got: %v\n want: %v", got, want)
	}
	if rows[0].Time.Before(rows[1].Time) {
		t.Error("rows are not newest first")
	}
	if got, want := rows[0].AirPPM, 0.0; got != want {
		t.Errorf("null air reading:\n  got: %v\n want: %v", got, want)
	}
}
