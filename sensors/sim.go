package sensors

import (
	"math/rand"
	"sync"
)

// Simulator random-walks a plausible environment, for developing on a
// machine with no sensors attached.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	cur Reading
}

// NewSimulator returns a Simulator.  The same seed yields the same weather.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		rng: rand.New(rand.NewSource(seed)),
		cur: Reading{
			IndoorTemp:      22,
			IndoorHumidity:  45,
			Pressure:        1013,
			OutdoorTemp:     17,
			OutdoorHumidity: 60,
			AirPPM:          60,
			HasOutdoor:      true,
			HasAir:          true,
		},
	}
}

// Read nudges every value and returns the result.
func (s *Simulator) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.IndoorTemp = s.walk(s.cur.IndoorTemp, 0.2, 18, 28)
	s.cur.OutdoorTemp = s.walk(s.cur.OutdoorTemp, 0.3, 10, 25)
	s.cur.IndoorHumidity = s.walk(s.cur.IndoorHumidity, 1, 30, 70)
	s.cur.OutdoorHumidity = s.walk(s.cur.OutdoorHumidity, 1, 40, 90)
	s.cur.Pressure = s.walk(s.cur.Pressure, 0.5, 980, 1040)
	s.cur.AirPPM = s.walk(s.cur.AirPPM, 3, 30, 150)
	return s.cur, nil
}

func (s *Simulator) walk(v, step, min, max float64) float64 {
	v += step * (2*s.rng.Float64() - 1)
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}
