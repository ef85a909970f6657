package main

import (
	"bytes"
	"image/color"
	"testing"
)

func TestFrame(t *testing.T) {
	got := frame(82, 1, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff})
	if want := 4 + 4*82 + 6; len(got) != want {
		t.Errorf("frame length:\n  got: %v\n want: %v", len(got), want)
	}
	if !bytes.Equal(got[:4], []byte{0, 0, 0, 0}) {
		t.Errorf("start frame: got %x", got[:4])
	}
	if want := []byte{0xe1, 0x30, 0x20, 0x10}; !bytes.Equal(got[4:8], want) {
		t.Errorf("first pixel:\n  got: %x\n want: %x", got[4:8], want)
	}
	if !bytes.Equal(got[4:8], got[len(got)-10:len(got)-6]) {
		t.Errorf("last pixel differs from first: %x", got[len(got)-10:len(got)-6])
	}
	for _, b := range got[len(got)-6:] {
		if b != 0xff {
			t.Fatalf("end frame byte: got %#x, want 0xff", b)
		}
	}
}

func TestFrameSinglePixel(t *testing.T) {
	got := frame(1, 31, color.NRGBA{A: 0xff})
	if want := []byte{0, 0, 0, 0, 0xff, 0, 0, 0, 0xff}; !bytes.Equal(got, want) {
		t.Errorf("frame:\n  got: %x\n want: %x", got, want)
	}
}
