// Package strip drives the clock's single APA102 strand and retains a
// rendering of it for debugging the rest of the program without the
// hardware attached.
//
// The strand is wired as three logical segments in one chain: the 60-pixel
// minute/second ring, then the 12-pixel hour ring, then the 10-pixel
// air-quality bar.  Renderers write whole segments; the strand composes the
// full frame, applies the global brightness, and pushes it out in one SPI
// write.
package strip

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/apa102"
)

const (
	// MinuteRing through AirBar describe the strand layout, in wiring order.
	MinuteRing = 60
	HourRing   = 12
	AirBar     = 10
	Pixels     = MinuteRing + HourRing + AirBar

	previewW = 420
	previewH = 480
	dotR     = 7 // half-size of one rendered pixel in the preview

	// Full-off APA102 pixels still draw about 1mA each at 5V.
	idlePower = 0.45 // W
)

var (
	strandWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_writes",
		Help: "count of frames pushed to the LED strand",
	})

	strandPower = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "strand_power_watts",
		Help: "estimated power draw of the frame currently displayed",
	})
)

// Opts adjusts strand behavior.
type Opts struct {
	// PowerBudget caps the estimated frame power in watts by scaling every
	// pixel down.  Zero disables the cap.
	PowerBudget float64
}

// Strand owns the full pixel chain.  A nil SPI port leaves it in
// preview-only mode: every write still updates the PNG served over HTTP.
type Strand struct {
	leds   *apa102.Dev
	budget float64

	mu         sync.Mutex
	pixels     []color.NRGBA
	brightness uint8
	preview    *image.NRGBA
	pos        []image.Point
}

// New returns an initialized Strand.
func New(p spi.Port, opts *Opts) (*Strand, error) {
	s := &Strand{
		pixels:     make([]color.NRGBA, Pixels),
		brightness: 0xff,
		preview:    image.NewNRGBA(image.Rect(0, 0, previewW, previewH)),
		pos:        layoutPositions(),
	}
	if opts != nil {
		s.budget = opts.PowerBudget
	}
	s.redrawPreviewLocked(s.pixels)
	if p == nil {
		return s, nil
	}
	o := &apa102.Opts{
		NumPixels:        Pixels,
		Intensity:        255,
		Temperature:      apa102.NeutralTemp,
		DisableGlobalPWM: true,
	}
	leds, err := apa102.New(p, o)
	if err != nil {
		return nil, fmt.Errorf("init apa102: %w", err)
	}
	s.leds = leds
	return s, nil
}

// Minutes is the 60-pixel minute/second ring.
func (s *Strand) Minutes() *Segment {
	return &Segment{strand: s, offset: 0, length: MinuteRing}
}

// Hours is the 12-pixel hour ring.
func (s *Strand) Hours() *Segment {
	return &Segment{strand: s, offset: MinuteRing, length: HourRing}
}

// Air is the 10-pixel air-quality bar.
func (s *Strand) Air() *Segment {
	return &Segment{strand: s, offset: MinuteRing + HourRing, length: AirBar}
}

// SetBrightness scales the whole strand to level/255 and pushes a frame.
// Setting the current level again is a no-op.
func (s *Strand) SetBrightness(level uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.brightness == level {
		return nil
	}
	s.brightness = level
	return s.flushLocked()
}

// Blank turns every pixel off.
func (s *Strand) Blank() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pixels {
		s.pixels[i] = color.NRGBA{}
	}
	if err := s.flushLocked(); err != nil {
		return fmt.Errorf("blank strand: %w", err)
	}
	return nil
}

// ServeHTTP serves the current strand state as a PNG.
func (s *Strand) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := png.Encode(w, s.preview); err != nil {
		log.Printf("encoding strand preview: %v", err)
	}
}

// flushLocked scales the logical pixels by the global brightness and the
// power budget, refreshes the preview, and writes the frame out.
func (s *Strand) flushLocked() error {
	out := make([]color.NRGBA, Pixels)
	scale := float64(s.brightness) / 255
	var power float64
	for i, c := range s.pixels {
		out[i] = scaleColor(c, scale)
		power += powerFor(out[i])
	}
	if s.budget > 0 && power > s.budget {
		f := s.budget / power
		for i := range out {
			out[i] = scaleColor(out[i], f)
		}
		power = s.budget
	}
	strandPower.Set(power + idlePower)
	s.redrawPreviewLocked(out)
	if s.leds == nil {
		return nil
	}
	if _, err := s.leds.Write(apa102.ToRGB(out)); err != nil {
		return fmt.Errorf("write to apa102 strand: %w", err)
	}
	strandWrites.Inc()
	return nil
}

func (s *Strand) redrawPreviewLocked(frame []color.NRGBA) {
	for i, c := range frame {
		// Unlit pixels are drawn dark gray so the layout stays visible.
		if c.R == 0 && c.G == 0 && c.B == 0 {
			c = color.NRGBA{R: 0x18, G: 0x18, B: 0x18, A: 0xff}
		} else {
			c.A = 0xff
		}
		p := s.pos[i]
		for x := p.X - dotR; x <= p.X+dotR; x++ {
			for y := p.Y - dotR; y <= p.Y+dotR; y++ {
				s.preview.SetNRGBA(x, y, c)
			}
		}
	}
}

// powerFor estimates the wattage of one pixel, assuming the datasheet's
// 60mA at 5V is reached with all three channels full on.
func powerFor(c color.NRGBA) float64 {
	return .02 * 5 * (float64(c.R) + float64(c.G) + float64(c.B)) / 255
}

func scaleColor(c color.NRGBA, f float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(f * float64(c.R)),
		G: uint8(f * float64(c.G)),
		B: uint8(f * float64(c.B)),
		A: 0xff,
	}
}

// layoutPositions maps strand indexes to preview coordinates: two
// concentric rings with 12 o'clock at the top, and the air bar along the
// bottom.
func layoutPositions() []image.Point {
	pos := make([]image.Point, Pixels)
	const cx, cy = previewW / 2, 210
	for i := 0; i < MinuteRing; i++ {
		theta := 2 * math.Pi * float64(i) / MinuteRing
		pos[i] = image.Point{
			X: cx + int(190*math.Sin(theta)),
			Y: cy - int(190*math.Cos(theta)),
		}
	}
	for i := 0; i < HourRing; i++ {
		theta := 2 * math.Pi * float64(i) / HourRing
		pos[MinuteRing+i] = image.Point{
			X: cx + int(120*math.Sin(theta)),
			Y: cy - int(120*math.Cos(theta)),
		}
	}
	for i := 0; i < AirBar; i++ {
		pos[MinuteRing+HourRing+i] = image.Point{X: 60 + 33*i, Y: 450}
	}
	return pos
}

// Segment is a renderer's view of one contiguous span of the strand.
type Segment struct {
	strand         *Strand
	offset, length int
}

// Len returns the number of pixels in the segment.
func (g *Segment) Len() int {
	return g.length
}

// Write replaces the segment's pixels and pushes a full strand frame.
func (g *Segment) Write(px []color.NRGBA) error {
	if len(px) != g.length {
		return fmt.Errorf("write segment: got %d pixels, want %d", len(px), g.length)
	}
	s := g.strand
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.pixels[g.offset:g.offset+g.length], px)
	return s.flushLocked()
}
