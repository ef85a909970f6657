package rtc

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

// initOps are the transactions NewDS1307 performs: a probe read and the
// square-wave enable.
func initOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: Addr, W: []byte{regSeconds}, R: []byte{0x00}},
		{Addr: Addr, W: []byte{regControl, sqw1Hz}, R: nil},
	}
}

func TestDS1307Now(t *testing.T) {
	testData := []struct {
		name    string
		regs    []byte
		want    time.Time
		wantErr error
	}{
		{
			name: "24 hour mode",
			regs: []byte{0x30, 0x59, 0x23, 0x03, 0x31, 0x12, 0x24},
			want: time.Date(2024, time.December, 31, 23, 59, 30, 0, time.UTC),
		},
		{
			name: "12 hour mode pm",
			regs: []byte{0x00, 0x00, 0x71, 0x01, 0x01, 0x06, 0x25},
			want: time.Date(2025, time.June, 1, 23, 0, 0, 0, time.UTC),
		},
		{
			name: "12 hour mode midnight",
			regs: []byte{0x00, 0x00, 0x52, 0x01, 0x01, 0x06, 0x25},
			want: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "oscillator halted",
			regs:    []byte{0x80, 0x00, 0x00, 0x01, 0x01, 0x01, 0x25},
			wantErr: ErrHalted,
		},
	}

	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			bus := &i2ctest.Playback{
				Ops: append(initOps(), i2ctest.IO{Addr: Addr, W: []byte{regSeconds}, R: test.regs}),
			}
			dev, err := NewDS1307(bus, time.UTC)
			if err != nil {
				t.Fatalf("init ds1307: %v", err)
			}
			got, err := dev.Now()
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("error:\n  got: %v\n want: %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("read time: %v", err)
			}
			if !got.Equal(test.want) {
				t.Errorf("time:\n  got: %v\n want: %v", got, test.want)
			}
		})
	}
}

func TestDS1307Set(t *testing.T) {
	// 2025-01-02 is a Thursday, weekday register 5 with 1=Sunday.
	bus := &i2ctest.Playback{
		Ops: append(initOps(), i2ctest.IO{
			Addr: Addr,
			W:    []byte{regSeconds, 0x05, 0x04, 0x03, 0x05, 0x02, 0x01, 0x25},
			R:    nil,
		}),
	}
	dev, err := NewDS1307(bus, time.UTC)
	if err != nil {
		t.Fatalf("init ds1307: %v", err)
	}
	if err := dev.Set(time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)); err != nil {
		t.Errorf("set time: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("unconsumed i2c operations: %v", err)
	}
}

func TestDS1307SetYearWindow(t *testing.T) {
	bus := &i2ctest.Playback{Ops: initOps()}
	dev, err := NewDS1307(bus, time.UTC)
	if err != nil {
		t.Fatalf("init ds1307: %v", err)
	}
	if err := dev.Set(time.Date(1999, time.December, 31, 23, 59, 59, 0, time.UTC)); err == nil {
		t.Error("expected an error for a year before 2000")
	}
	if err := dev.Set(time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("expected an error for a year after 2099")
	}
}

func TestBCD(t *testing.T) {
	for dec := 0; dec < 100; dec++ {
		if got, want := bcdToDec(decToBCD(dec)), dec; got != want {
			t.Errorf("bcd round trip:\n  got: %v\n want: %v", got, want)
		}
	}
}

func TestSystemClock(t *testing.T) {
	clock := NewSystemClock(time.UTC)
	target := time.Now().Add(time.Hour)
	if err := clock.Set(target); err != nil {
		t.Fatalf("set system clock: %v", err)
	}
	got, err := clock.Now()
	if err != nil {
		t.Fatalf("read system clock: %v", err)
	}
	if diff := got.Sub(target); diff < -time.Second || diff > time.Second {
		t.Errorf("offset clock drifted: got %v, want within 1s of %v", got, target)
	}
	if got.Location() != time.UTC {
		t.Errorf("location:\n  got: %v\n want: %v", got.Location(), time.UTC)
	}
}
