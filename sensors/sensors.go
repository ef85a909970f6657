// Package sensors polls the clock's environment sensors and fans readings
// out to anything that wants them.
package sensors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"
)

var (
	temperatureMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "temperature_celsius",
		Help: "last measured temperature",
	}, []string{"location"})

	humidityMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "humidity_percent",
		Help: "last measured relative humidity",
	}, []string{"location"})

	pressureMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pressure_hpa",
		Help: "last measured barometric pressure",
	})

	airMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "air_ppm",
		Help: "last measured CO2-equivalent concentration",
	})

	readFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensor_read_failures",
		Help: "count of failed sensor sweeps",
	})
)

// Reading is one sweep over every attached sensor.  HasOutdoor and HasAir
// report which optional sensors contributed.
type Reading struct {
	Time            time.Time
	IndoorTemp      float64 // degrees C
	IndoorHumidity  float64 // %
	Pressure        float64 // hPa
	OutdoorTemp     float64
	OutdoorHumidity float64
	AirPPM          float64
	HasOutdoor      bool
	HasAir          bool
}

// Source produces readings.
type Source interface {
	Read() (Reading, error)
}

// Sink consumes readings, e.g. a database or an MQTT broker.
type Sink interface {
	Record(Reading) error
}

// Poller reads a Source on an interval, remembers the latest reading, and
// forwards each one to every sink.  Sink errors are logged, not fatal.
type Poller struct {
	src      Source
	interval time.Duration
	sinks    []Sink
	logger   zerolog.Logger
	events   trace.EventLog

	mu   sync.RWMutex
	last Reading
	ok   bool
}

// NewPoller returns a Poller; Run starts it.
func NewPoller(src Source, interval time.Duration, logger zerolog.Logger, sinks ...Sink) *Poller {
	return &Poller{
		src:      src,
		interval: interval,
		sinks:    sinks,
		logger:   logger.With().Str("component", "sensors").Logger(),
		events:   trace.NewEventLog("sensors", "poller"),
	}
}

// Run polls until the context is canceled.  The first sweep happens
// immediately so consumers are not blind for a whole interval after boot.
func (p *Poller) Run(ctx context.Context) error {
	p.poll()
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.events.Finish()
			return ctx.Err()
		case <-t.C:
			p.poll()
		}
	}
}

// Last returns the most recent reading, and whether one exists yet.
func (p *Poller) Last() (Reading, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.ok
}

func (p *Poller) poll() {
	r, err := p.src.Read()
	if err != nil {
		readFailures.Inc()
		p.events.Errorf("read: %v", err)
		p.logger.Error().Err(err).Msg("problem reading sensors")
		return
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	p.mu.Lock()
	p.last, p.ok = r, true
	p.mu.Unlock()

	temperatureMetric.WithLabelValues("indoor").Set(r.IndoorTemp)
	humidityMetric.WithLabelValues("indoor").Set(r.IndoorHumidity)
	pressureMetric.Set(r.Pressure)
	if r.HasOutdoor {
		temperatureMetric.WithLabelValues("outdoor").Set(r.OutdoorTemp)
		humidityMetric.WithLabelValues("outdoor").Set(r.OutdoorHumidity)
	}
	if r.HasAir {
		airMetric.Set(r.AirPPM)
	}
	p.events.Printf("indoor %.1fC %.0f%% %.1fhPa, outdoor %.1fC %.0f%%, air %.0fppm",
		r.IndoorTemp, r.IndoorHumidity, r.Pressure, r.OutdoorTemp, r.OutdoorHumidity, r.AirPPM)

	for _, s := range p.sinks {
		if err := s.Record(r); err != nil {
			p.logger.Error().Err(err).Str("sink", fmt.Sprintf("%T", s)).Msg("problem recording reading")
		}
	}
}
