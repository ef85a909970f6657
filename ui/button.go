// Package ui turns two physical buttons into menu state: which page the
// text panel shows, what the settings cursor points at, and edits to the
// night schedule.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
)

// edgeWait bounds how long an edge wait can block, so a canceled context is
// noticed promptly.
const edgeWait = 500 * time.Millisecond

// Kind identifies a physical button.
type Kind int

const (
	ButtonMode Kind = iota
	ButtonSelect
)

func (k Kind) String() string {
	if k == ButtonMode {
		return "mode"
	}
	return "select"
}

// Event is one debounced button press.
type Event struct {
	Kind Kind
	Time time.Time
}

// Button watches one GPIO pin.  The buttons short the pin to ground, so a
// press is a falling edge on a pulled-up input.
type Button struct {
	kind     Kind
	pin      gpio.PinIO
	debounce time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewButton returns a Button for the pin.
func NewButton(kind Kind, pin gpio.PinIO, debounce time.Duration, logger zerolog.Logger) *Button {
	return &Button{
		kind:     kind,
		pin:      pin,
		debounce: debounce,
		now:      time.Now,
		logger:   logger.With().Stringer("button", kind).Logger(),
	}
}

// Run delivers debounced presses to events until the context is canceled.
// Edges closer together than the debounce interval are contact chatter, not
// presses, and are dropped.
func (b *Button) Run(ctx context.Context, events chan<- Event) error {
	if err := b.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure %v pin: %w", b.kind, err)
	}
	b.logger.Info().Str("button", b.kind.String()).Str("pin", b.pin.Name()).Msg("watching button")
	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !b.pin.WaitForEdge(edgeWait) {
			continue
		}
		now := b.now()
		if !last.IsZero() && now.Sub(last) < b.debounce {
			continue
		}
		last = now
		select {
		case events <- Event{Kind: b.kind, Time: now}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
