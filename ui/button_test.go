package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestButtonDebounce(t *testing.T) {
	pin := &gpiotest.Pin{N: "MODE", EdgesChan: make(chan gpio.Level)}
	clock := &fakeClock{now: time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)}
	b := NewButton(ButtonMode, pin, 50*time.Millisecond, zerolog.Nop())
	b.now = clock.Now

	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error)
	go func() { done <- b.Run(ctx, events) }()

	pin.EdgesChan <- gpio.Low
	e1 := <-events
	if got, want := e1.Kind, ButtonMode; got != want {
		t.Errorf("event kind:\n  got: %v\n want: %v", got, want)
	}

	// Contact chatter 10ms after the press is dropped; a real press 100ms
	// later is delivered.
	clock.Advance(10 * time.Millisecond)
	pin.EdgesChan <- gpio.Low
	clock.Advance(100 * time.Millisecond)
	pin.EdgesChan <- gpio.Low
	e2 := <-events
	if got, want := e2.Time.Sub(e1.Time), 110*time.Millisecond; got != want {
		t.Errorf("time between presses:\n  got: %v\n want: %v", got, want)
	}

	select {
	case e := <-events:
		t.Errorf("unexpected extra event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run returned %v, want context.Canceled", err)
	}
}
