package panel

import (
	"errors"
	"image"
	"testing"
)

type fakeDevice struct {
	on, off, closed bool
	clears, draws   int
	img             image.Image
	drawErr         error
}

func (d *fakeDevice) On() error  { d.on = true; return nil }
func (d *fakeDevice) Off() error { d.off = true; return nil }
func (d *fakeDevice) Clear() error {
	d.clears++
	return nil
}
func (d *fakeDevice) SetImage(x, y int, img image.Image) error {
	d.img = img
	return nil
}
func (d *fakeDevice) Draw() error {
	if d.drawErr != nil {
		return d.drawErr
	}
	d.draws++
	return nil
}
func (d *fakeDevice) Close() error { d.closed = true; return nil }

// lit counts white pixels in rows [y0, y1).
func lit(img image.Image, y0, y1 int) int {
	var n int
	for y := y0; y < y1; y++ {
		for x := 0; x < Width; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r > 0 {
				n++
			}
		}
	}
	return n
}

func TestShow(t *testing.T) {
	dev := &fakeDevice{}
	p, err := New(dev)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	if !dev.on {
		t.Error("display was not turned on")
	}

	page := Page{Title: "CLOCK", Lines: []string{"12:34:56", "24/08/2025"}, Cursor: -1}
	if err := p.Show(page); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got, want := dev.draws, 1; got != want {
		t.Fatalf("draws:\n  got: %v\n want: %v", got, want)
	}
	if got := lit(dev.img, 0, lineHeight); got == 0 {
		t.Error("no pixels lit in the title row")
	}
	if got := lit(dev.img, lineHeight+3, Height); got == 0 {
		t.Error("no pixels lit in the body")
	}
}

func TestShowSuppressesRepeats(t *testing.T) {
	dev := &fakeDevice{}
	p, err := New(dev)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	page := Page{Title: "CLOCK", Lines: []string{"12:34:56"}, Cursor: -1}
	for i := 0; i < 3; i++ {
		if err := p.Show(page); err != nil {
			t.Fatalf("show %d: %v", i, err)
		}
	}
	if got, want := dev.draws, 1; got != want {
		t.Errorf("draws for a repeated page:\n  got: %v\n want: %v", got, want)
	}
	page.Lines[0] = "12:34:57"
	if err := p.Show(page); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got, want := dev.draws, 2; got != want {
		t.Errorf("draws after a change:\n  got: %v\n want: %v", got, want)
	}
}

func TestCursorChangesFrame(t *testing.T) {
	dev := &fakeDevice{}
	p, err := New(dev)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	page := Page{Title: "SETTINGS", Lines: []string{"night start", "night end"}, Cursor: 0}
	if err := p.Show(page); err != nil {
		t.Fatalf("show: %v", err)
	}
	page.Cursor = 1
	if err := p.Show(page); err != nil {
		t.Fatalf("show: %v", err)
	}
	if got, want := dev.draws, 2; got != want {
		t.Errorf("draws after moving the cursor:\n  got: %v\n want: %v", got, want)
	}
}

func TestShowErrorRetries(t *testing.T) {
	dev := &fakeDevice{drawErr: errors.New("i2c timeout")}
	p, err := New(dev)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	page := Page{Title: "CLOCK", Cursor: -1}
	if err := p.Show(page); err == nil {
		t.Fatal("expected a draw error")
	}
	dev.drawErr = nil
	if err := p.Show(page); err != nil {
		t.Fatalf("show after recovery: %v", err)
	}
	if got, want := dev.draws, 1; got != want {
		t.Errorf("draws:\n  got: %v\n want: %v", got, want)
	}
}

func TestClose(t *testing.T) {
	dev := &fakeDevice{}
	p, err := New(dev)
	if err != nil {
		t.Fatalf("new panel: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if dev.clears == 0 || !dev.off || !dev.closed {
		t.Errorf("close left the display up: clears=%d off=%v closed=%v", dev.clears, dev.off, dev.closed)
	}
}
