package sensors

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/bmxx80"
)

// The MQ135 sits in a voltage divider above a load resistor; its datasheet
// curve converts the resistance ratio against the calibrated clean-air
// resistance into a CO2-equivalent PPM.
const (
	mq135CurveA = 116.6020682
	mq135CurveB = -2.769034857
	mq135VCC    = 3.3
)

// HardwareOpts selects which sensors are attached.  A zero address skips
// that sensor.
type HardwareOpts struct {
	IndoorAddr  uint16 // BME280, required
	OutdoorAddr uint16 // second BME280
	ADCAddr     uint16 // ADS1115 with the MQ135 on channel 0
	RLoad       float64
	RZero       float64
}

// Hardware reads the real sensors over I2C.
type Hardware struct {
	indoor  *bmxx80.Dev
	outdoor *bmxx80.Dev
	air     ads1x15.PinADC
	rload   float64
	rzero   float64
}

// NewHardware probes the configured sensors on the bus.
func NewHardware(bus i2c.Bus, opts HardwareOpts) (*Hardware, error) {
	sense := &bmxx80.Opts{
		Temperature: bmxx80.O16x,
		Pressure:    bmxx80.O16x,
		Humidity:    bmxx80.O16x,
	}
	h := &Hardware{rload: opts.RLoad, rzero: opts.RZero}
	var err error
	if h.indoor, err = bmxx80.NewI2C(bus, opts.IndoorAddr, sense); err != nil {
		return nil, fmt.Errorf("init indoor bme280 at %#x: %w", opts.IndoorAddr, err)
	}
	if opts.OutdoorAddr != 0 {
		if h.outdoor, err = bmxx80.NewI2C(bus, opts.OutdoorAddr, sense); err != nil {
			return nil, fmt.Errorf("init outdoor bme280 at %#x: %w", opts.OutdoorAddr, err)
		}
	}
	if opts.ADCAddr != 0 {
		adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: int(opts.ADCAddr)})
		if err != nil {
			return nil, fmt.Errorf("init ads1115 at %#x: %w", opts.ADCAddr, err)
		}
		h.air, err = adc.PinForChannel(ads1x15.Channel0, 3300*physic.MilliVolt, 8*physic.Hertz, ads1x15.SaveEnergy)
		if err != nil {
			return nil, fmt.Errorf("configure adc channel 0: %w", err)
		}
	}
	return h, nil
}

// Read sweeps every attached sensor.
func (h *Hardware) Read() (Reading, error) {
	var r Reading
	var env physic.Env
	if err := h.indoor.Sense(&env); err != nil {
		return r, fmt.Errorf("sense indoor: %w", err)
	}
	r.IndoorTemp = env.Temperature.Celsius()
	r.IndoorHumidity = float64(env.Humidity) / float64(physic.PercentRH)
	r.Pressure = float64(env.Pressure) / float64(physic.Pascal) / 100

	if h.outdoor != nil {
		if err := h.outdoor.Sense(&env); err != nil {
			return r, fmt.Errorf("sense outdoor: %w", err)
		}
		r.OutdoorTemp = env.Temperature.Celsius()
		r.OutdoorHumidity = float64(env.Humidity) / float64(physic.PercentRH)
		r.HasOutdoor = true
	}

	if h.air != nil {
		sample, err := h.air.Read()
		if err != nil {
			return r, fmt.Errorf("read air adc: %w", err)
		}
		v := float64(sample.V) / float64(physic.Volt)
		ppm, err := airPPM(v, h.rload, h.rzero)
		if err != nil {
			return r, err
		}
		r.AirPPM = ppm
		r.HasAir = true
	}
	return r, nil
}

// Halt powers the sensors down.
func (h *Hardware) Halt() error {
	if err := h.indoor.Halt(); err != nil {
		return fmt.Errorf("halt indoor bme280: %w", err)
	}
	if h.outdoor != nil {
		if err := h.outdoor.Halt(); err != nil {
			return fmt.Errorf("halt outdoor bme280: %w", err)
		}
	}
	if h.air != nil {
		if err := h.air.Halt(); err != nil {
			return fmt.Errorf("halt air adc: %w", err)
		}
	}
	return nil
}

// airPPM converts the voltage across the load resistor into a
// CO2-equivalent concentration.
func airPPM(v, rload, rzero float64) (float64, error) {
	if v <= 0 || v >= mq135VCC {
		return 0, fmt.Errorf("air sensor voltage %.2fV out of range", v)
	}
	rs := rload * (mq135VCC - v) / v
	return mq135CurveA * math.Pow(rs/rzero, mq135CurveB), nil
}
