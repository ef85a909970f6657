// Package panel renders menu pages on the small OLED next to the buttons.
package panel

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel geometry, for an SSD1306 in 128x64 configuration.
const (
	Width  = 128
	Height = 64

	// Face7x13 metrics.
	ascent     = 11
	lineHeight = 13

	// MaxLines is how many body lines fit under the title.
	MaxLines = 3
)

// Device is the physical display.  *monochromeoled.OLED satisfies it.
type Device interface {
	On() error
	Off() error
	Clear() error
	SetImage(x, y int, img image.Image) error
	Draw() error
	Close() error
}

// Page is one screenful of text.  Cursor highlights that body line; use -1
// for none.
type Page struct {
	Title  string
	Lines  []string
	Cursor int
}

func (p Page) signature() string {
	return fmt.Sprintf("%s|%d|%s", p.Title, p.Cursor, strings.Join(p.Lines, "|"))
}

// Panel owns the display and skips redraws of the page already shown, since
// pushing a full frame over I2C is slow enough to flicker.
type Panel struct {
	dev Device

	mu   sync.Mutex
	last string
}

// New turns the display on.
func New(dev Device) (*Panel, error) {
	if err := dev.On(); err != nil {
		return nil, fmt.Errorf("turn panel on: %w", err)
	}
	return &Panel{dev: dev}, nil
}

// Show renders a page.
func (p *Panel) Show(page Page) error {
	sig := page.signature()
	p.mu.Lock()
	defer p.mu.Unlock()
	if sig == p.last {
		return nil
	}
	if err := p.dev.SetImage(0, 0, render(page)); err != nil {
		return fmt.Errorf("set panel image: %w", err)
	}
	if err := p.dev.Draw(); err != nil {
		return fmt.Errorf("draw panel: %w", err)
	}
	p.last = sig
	return nil
}

// Close blanks the display and turns it off, so a dark panel means the
// program exited rather than hung.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.Clear(); err != nil {
		return fmt.Errorf("clear panel: %w", err)
	}
	if err := p.dev.Draw(); err != nil {
		return fmt.Errorf("draw panel: %w", err)
	}
	if err := p.dev.Off(); err != nil {
		return fmt.Errorf("turn panel off: %w", err)
	}
	return p.dev.Close()
}

func render(page Page) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	d := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
	}
	d.Dot = fixed.P(0, ascent)
	d.DrawString(page.Title)
	y := ascent + lineHeight + 3
	for i, line := range page.Lines {
		if i >= MaxLines {
			break
		}
		if i == page.Cursor {
			line = ">" + line
		} else {
			line = " " + line
		}
		d.Dot = fixed.P(0, y)
		d.DrawString(line)
		y += lineHeight
	}
	return img
}
