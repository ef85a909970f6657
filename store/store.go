// Package store archives sensor readings in a local SQLite database, so
// the status page can show history across restarts.
package store

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jrockway/deskclock/sensors"
)

const initDatabase = `
CREATE TABLE IF NOT EXISTS reading (date datetime not null, location text not null, temperature double, humidity double, pressure double, air_ppm double);
`

// DB wraps the database with the insert throttle.
type DB struct {
	*sql.DB
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

// Open opens or creates the database.  Readings closer together than
// minInterval are dropped rather than stored; zero stores everything.
func Open(filename string, minInterval time.Duration) (*DB, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(initDatabase); err != nil {
		return nil, err
	}
	return &DB{DB: db, minInterval: minInterval}, nil
}

// Record stores a reading, one row per location.
func (db *DB) Record(r sensors.Reading) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.minInterval > 0 && !db.last.IsZero() && r.Time.Sub(db.last) < db.minInterval {
		return nil
	}
	if err := db.insert(r); err != nil {
		return err
	}
	db.last = r.Time
	return nil
}

func (db *DB) insert(r sensors.Reading) error {
	s, err := db.Prepare("insert into reading values(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer s.Close()
	air := sql.NullFloat64{Float64: r.AirPPM, Valid: r.HasAir}
	if _, err := s.Exec(r.Time, "indoor", r.IndoorTemp, r.IndoorHumidity, r.Pressure, air); err != nil {
		return err
	}
	if r.HasOutdoor {
		if _, err := s.Exec(r.Time, "outdoor", r.OutdoorTemp, r.OutdoorHumidity, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Row is one stored measurement.
type Row struct {
	Time                  time.Time
	Location              string
	Temperature, Humidity float64
	Pressure, AirPPM      float64
}

// Recent returns up to limit rows, newest first.
func (db *DB) Recent(limit int) ([]Row, error) {
	s, err := db.Prepare("select date, location, temperature, humidity, pressure, air_ppm from reading order by date desc limit ?")
	if err != nil {
		return nil, err
	}
	defer s.Close()
	rows, err := s.Query(limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		var pressure, air sql.NullFloat64
		if err := rows.Scan(&r.Time, &r.Location, &r.Temperature, &r.Humidity, &pressure, &air); err != nil {
			return nil, err
		}
		r.Pressure, r.AirPPM = pressure.Float64, air.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) single(query string, args ...interface{}) (int, error) {
	s, err := db.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	rows, err := s.Query(args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var result int
	var found bool
	for rows.Next() {
		if found {
			return 0, errors.New("more than one row returned!")
		}
		if err := rows.Scan(&result); err != nil {
			return 0, err
		}
		found = true
	}
	return result, nil
}
