package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
)

var (
	missedTicksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missed_ticks",
		Help: "count of 1Hz ticks dropped because the previous tick was still pending",
	})

	tickDelayMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_delay",
		Help:    "amount of time between the seconds tick and when it lands in the channel, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 10, 20),
	})
)

// edgeWait bounds each WaitForEdge call so that Run notices a cancelled
// context even if the square wave stops.
const edgeWait = 500 * time.Millisecond

// Ticker produces one event per second on a single-slot channel.  At most
// one tick is ever pending: if the consumer has not drained the previous
// tick, the new one is dropped, counted, and logged rather than queued.
//
// With a GPIO pin wired to the clock chip's SQW output the ticks are
// hardware-driven; with a nil pin they are derived from the host clock at
// each second boundary.
type Ticker struct {
	pin    gpio.PinIO
	logger zerolog.Logger
	c      chan time.Time
}

func NewTicker(pin gpio.PinIO, logger zerolog.Logger) *Ticker {
	logger = logger.With().Str("component", "ticker").Logger()
	return &Ticker{pin: pin, logger: logger, c: make(chan time.Time, 1)}
}

// C is the tick channel.  Receiving from it consumes the pending tick.
func (t *Ticker) C() <-chan time.Time {
	return t.c
}

// Run generates ticks until the context is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	if t.pin == nil {
		return t.runSoftware(ctx)
	}
	// The SQW pin is open-drain; it needs a pull-up and we tick on the
	// falling edge.
	if err := t.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure tick pin %s: %w", t.pin, err)
	}
	for {
		if !t.pin.WaitForEdge(edgeWait) {
			select {
			case <-ctx.Done():
				return fmt.Errorf("waiting for tick edge: %w", ctx.Err())
			default:
			}
			continue
		}
		t.deliver(time.Now())
	}
}

// runSoftware mimics the hardware tick by waking at each second boundary.
func (t *Ticker) runSoftware(ctx context.Context) error {
	for {
		nextSecond := time.Now().Add(time.Second).Truncate(time.Second)
		select {
		case <-time.After(time.Until(nextSecond)):
		case <-ctx.Done():
			return fmt.Errorf("waiting for next second: %w", ctx.Err())
		}
		t.deliver(nextSecond)
	}
}

func (t *Ticker) deliver(ts time.Time) {
	select {
	case t.c <- ts:
		tickDelayMetric.Observe(float64(time.Since(ts).Nanoseconds()))
	default:
		missedTicksCounter.Inc()
		t.logger.Warn().Time("tick", ts).Msg("dropped a tick; consumer is behind")
	}
}
