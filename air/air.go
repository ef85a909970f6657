// Package air grades a CO2-equivalent PPM reading and renders the grade
// onto the 10-pixel bar at the bottom of the clock.
package air

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var levelMetric = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "air_quality_level",
	Help: "current air quality level, 0 (excellent) through 5 (dangerous)",
})

// Level is an air quality grade.
type Level int

const (
	Excellent Level = iota
	Good
	Moderate
	Poor
	Unhealthy
	Dangerous
)

// PPM thresholds between grades.
const (
	maxExcellent = 50
	maxGood      = 100
	maxModerate  = 200
	maxPoor      = 300
	maxUnhealthy = 500
)

func (l Level) String() string {
	switch l {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Moderate:
		return "moderate"
	case Poor:
		return "poor"
	case Unhealthy:
		return "unhealthy"
	case Dangerous:
		return "dangerous"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// LevelFor grades a PPM reading.
func LevelFor(ppm float64) Level {
	switch {
	case ppm < maxExcellent:
		return Excellent
	case ppm < maxGood:
		return Good
	case ppm < maxModerate:
		return Moderate
	case ppm < maxPoor:
		return Poor
	case ppm < maxUnhealthy:
		return Unhealthy
	}
	return Dangerous
}

// countFor maps a PPM reading to the number of lit bar pixels.  Each grade
// owns a span of the bar and the reading interpolates within it, so the bar
// keeps moving even when the grade doesn't change.
func countFor(ppm float64) int {
	var n int
	switch {
	case ppm < maxExcellent:
		n = 2 + int(2*ppm/maxExcellent)
	case ppm < maxGood:
		n = 4 + int(2*(ppm-maxExcellent)/(maxGood-maxExcellent))
	case ppm < maxModerate:
		n = 6 + int(2*(ppm-maxGood)/(maxModerate-maxGood))
	case ppm < maxPoor:
		n = 8 + int((ppm-maxModerate)/(maxPoor-maxModerate))
	case ppm < maxUnhealthy:
		n = 9 + int((ppm-maxPoor)/(maxUnhealthy-maxPoor))
	default:
		n = 10
	}
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

// Palette assigns a color to each grade.
type Palette struct {
	Excellent, Good, Moderate, Poor, Unhealthy, Dangerous color.NRGBA
}

func (p Palette) colorFor(l Level) color.NRGBA {
	switch l {
	case Excellent:
		return p.Excellent
	case Good:
		return p.Good
	case Moderate:
		return p.Moderate
	case Poor:
		return p.Poor
	case Unhealthy:
		return p.Unhealthy
	}
	return p.Dangerous
}

// Bar is the output device, normally the air segment of the strand.
type Bar interface {
	Len() int
	Write([]color.NRGBA) error
}

// Renderer paints readings onto the bar, skipping writes that would not
// change anything.
type Renderer struct {
	bar     Bar
	palette Palette

	mu        sync.Mutex
	drawn     bool
	lastLevel Level
	lastCount int
}

// NewRenderer returns a Renderer for the given bar.
func NewRenderer(bar Bar, palette Palette) *Renderer {
	return &Renderer{bar: bar, palette: palette}
}

// Render displays a PPM reading.
func (r *Renderer) Render(ppm float64) error {
	level, count := LevelFor(ppm), countFor(ppm)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drawn && level == r.lastLevel && count == r.lastCount {
		return nil
	}
	r.drawn = false
	px := make([]color.NRGBA, r.bar.Len())
	c := r.palette.colorFor(level)
	for i := 0; i < count && i < len(px); i++ {
		px[i] = c
	}
	if err := r.bar.Write(px); err != nil {
		return fmt.Errorf("write air bar: %w", err)
	}
	levelMetric.Set(float64(level))
	r.drawn, r.lastLevel, r.lastCount = true, level, count
	return nil
}

// Blank clears the bar and forgets the cached frame.
func (r *Renderer) Blank() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawn = false
	return r.bar.Write(make([]color.NRGBA, r.bar.Len()))
}
