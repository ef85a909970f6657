package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/jrockway/deskclock/config"
	"github.com/jrockway/deskclock/netsync"
	"github.com/jrockway/deskclock/rtc"
	"github.com/jrockway/deskclock/sensors"
	"github.com/jrockway/deskclock/timekeeper"
)

// runSync sets the clock chip from NTP without starting the daemon, for
// first-time setup and for checking how far the chip has drifted.
func runSync(cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Clock.Location()
	if err != nil {
		return err
	}
	var dev rtc.Device
	if cfg.Clock.System {
		dev = rtc.NewSystemClock(loc)
	} else {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("init peripheral host: %w", err)
		}
		bus, err := i2creg.Open(cfg.Clock.I2CBus)
		if err != nil {
			return fmt.Errorf("open i2c bus %q: %w", cfg.Clock.I2CBus, err)
		}
		defer bus.Close()
		if dev, err = rtc.NewDS1307(bus, loc); err != nil {
			return err
		}
	}
	keeper := timekeeper.New(dev, nil, logger)
	if err := netsync.New(cfg.Clock.NTPServer, loc, keeper, logger).Sync(context.Background()); err != nil {
		return err
	}
	now := keeper.Snapshot()
	fmt.Printf("clock set to %s on %s\n", now, now.DateString())
	return nil
}

func runRead(cfg *config.Config, logger zerolog.Logger) error {
	var src sensors.Source
	if cfg.Sensors.Simulate {
		src = sensors.NewSimulator(time.Now().UnixNano())
	} else {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("init peripheral host: %w", err)
		}
		bus, err := i2creg.Open(cfg.Clock.I2CBus)
		if err != nil {
			return fmt.Errorf("open i2c bus %q: %w", cfg.Clock.I2CBus, err)
		}
		defer bus.Close()
		hw, err := sensors.NewHardware(bus, sensors.HardwareOpts{
			IndoorAddr:  cfg.Sensors.IndoorAddr,
			OutdoorAddr: cfg.Sensors.OutdoorAddr,
			ADCAddr:     cfg.Sensors.ADCAddr,
			RLoad:       cfg.Sensors.RLoad,
			RZero:       cfg.Sensors.RZero,
		})
		if err != nil {
			return err
		}
		defer hw.Halt()
		src = hw
	}
	r, err := src.Read()
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}
	r.Time = time.Now()
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
