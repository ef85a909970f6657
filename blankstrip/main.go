// Command blankstrip paints every pixel of the strand one solid color over
// the raw spidev device, with no daemon in the way.  Run it with the default
// black when a crash leaves the LEDs stuck bright.
package main

import (
	"flag"
	"image/color"
	"log"

	"github.com/fulr/spidev"

	"github.com/jrockway/deskclock/config"
	"github.com/jrockway/deskclock/strip"
)

var (
	dev    = flag.String("dev", "/dev/spidev0.0", "raw spi device the strand is wired to")
	n      = flag.Int("n", strip.Pixels, "number of LEDs on the strand")
	col    = flag.String("color", "000000", "RRGGBB color to paint every pixel")
	global = flag.Int("global", 1, "apa102 global brightness, 0-31")
)

func main() {
	flag.Parse()
	c, err := config.ParseColor(*col)
	if err != nil {
		log.Fatal(err)
	}
	if *global < 0 || *global > 31 {
		log.Fatalf("global brightness %d out of range 0-31", *global)
	}
	if *n < 1 {
		log.Fatal("need at least one pixel")
	}

	spi, err := spidev.NewSPIDevice(*dev)
	if err != nil {
		log.Fatal(err)
	}
	defer spi.Close()

	if _, err := spi.Xfer(frame(*n, byte(*global), c)); err != nil {
		log.Fatalf("write frame: %v", err)
	}
	log.Printf("painted %d pixels #%02x%02x%02x", *n, c.R, c.G, c.B)
}

// frame builds one complete apa102 update: a zero start frame, a
// brightness+BGR word per pixel, and enough trailing clock bytes to latch
// the last pixels.
func frame(n int, global byte, c color.NRGBA) []byte {
	buf := make([]byte, 0, 4+4*n+(n+15)/16)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)
	for i := 0; i < n; i++ {
		buf = append(buf, 0xe0|global, c.B, c.G, c.R)
	}
	for i := 0; i < (n+15)/16; i++ {
		buf = append(buf, 0xff)
	}
	return buf
}
