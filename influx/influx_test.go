package influx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrockway/deskclock/sensors"
)

var testReading = sensors.Reading{
	Time:            time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC),
	IndoorTemp:      22.5,
	IndoorHumidity:  45,
	Pressure:        1013.2,
	OutdoorTemp:     17,
	OutdoorHumidity: 60,
	AirPPM:          55,
	HasOutdoor:      true,
	HasAir:          true,
}

func TestRecord(t *testing.T) {
	var gotBody, gotAuth, gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		gotAuth = req.Header.Get("authorization")
		gotQuery = req.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "home", "sensors", "sekrit")
	if err := c.Record(testReading); err != nil {
		t.Fatalf("record: %v", err)
	}

	if got, want := gotAuth, "Token sekrit"; got != want {
		t.Errorf("authorization:\n  got: %v\n want: %v", got, want)
	}
	if got, want := gotQuery, "org=home&bucket=sensors"; got != want {
		t.Errorf("query:\n  got: %v\n want: %v", got, want)
	}
	lines := strings.Split(strings.TrimSpace(gotBody), "\n")
	if got, want := len(lines), 2; got != want {
		t.Fatalf("lines:\n  got: %v\n want: %v", got, want)
	}
	wantNano := strconv.FormatInt(testReading.Time.UnixNano(), 10)
	if got, want := lines[0], "environment,location=indoor temperature=22.5,relative_humidity=45,pressure=1013.2,air_ppm=55 "+wantNano; got != want {
		t.Errorf("indoor line:\n  got: %v\n want: %v", got, want)
	}
	if got, want := lines[1], "environment,location=outdoor temperature=17,relative_humidity=60 "+wantNano; got != want {
		t.Errorf("outdoor line:\n  got: %v\n want: %v", got, want)
	}
}

func TestRecordIndoorOnly(t *testing.T) {
	var gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "home", "sensors", "sekrit")
	r := testReading
	r.HasOutdoor, r.HasAir = false, false
	if err := c.Record(r); err != nil {
		t.Fatalf("record: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(gotBody), "\n")
	if got, want := len(lines), 1; got != want {
		t.Fatalf("lines:\n  got: %v\n want: %v", got, want)
	}
	if strings.Contains(lines[0], "air_ppm") {
		t.Errorf("line mentions a sensor that is not attached: %v", lines[0])
	}
}

func TestServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL, "home", "sensors", "sekrit")
	err := c.Record(testReading)
	if err == nil {
		t.Fatal("expected an error from a 404")
	}
	if !strings.Contains(err.Error(), "bucket not found") {
		t.Errorf("error does not mention the response body: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests++
	}))
	defer ts.Close()

	c := New(ts.URL, "home", "sensors", "")
	if c.Enabled() {
		t.Error("client with no token claims to be enabled")
	}
	if err := c.Record(testReading); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got, want := requests, 0; got != want {
		t.Errorf("requests:\n  got: %v\n want: %v", got, want)
	}
}

