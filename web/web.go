// Package web serves the clock's status page, a JSON view of the same data,
// and the Prometheus and x/net/trace debug surfaces.
package web

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"

	"github.com/jrockway/deskclock/air"
	"github.com/jrockway/deskclock/netsync"
	"github.com/jrockway/deskclock/sensors"
	"github.com/jrockway/deskclock/store"
	"github.com/jrockway/deskclock/timekeeper"
)

var (
	//go:embed index.html.tmpl
	indexHTML string

	funcMap = template.FuncMap{
		"float0":   func(x float64) string { return fmt.Sprintf("%.0f", x) },
		"float1":   func(x float64) string { return fmt.Sprintf("%.1f", x) },
		"level":    func(ppm float64) string { return air.LevelFor(ppm).String() },
		"unixtime": formatUnixTime,
	}
	index = template.Must(template.New("index").Funcs(funcMap).Parse(indexHTML))
)

func formatUnixTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.UnixDate)
}

// Status is everything the status page shows.  The daemon assembles one on
// demand from the components that own each piece.
type Status struct {
	Now         timekeeper.WallClock
	Sync        netsync.Status
	Reading     sensors.Reading
	HaveReading bool
	History     []store.Row
}

// Server wires the handlers together.
type Server struct {
	status  func() Status
	display http.Handler
	logger  zerolog.Logger
}

// New returns a Server.  status must be safe to call from any goroutine;
// display serves the strand preview PNG and may be nil.
func New(status func() Status, display http.Handler, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "web").Logger()
	return &Server{status: status, display: display, logger: logger}
}

// Handler returns the full mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveIndex)
	mux.HandleFunc("/api/data", s.serveData)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/requests", trace.Traces)
	mux.HandleFunc("/debug/events", trace.Events)
	if s.display != nil {
		mux.Handle("/display.png", s.display)
	}
	return mux
}

func (s *Server) serveIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := index.Execute(w, s.status()); err != nil {
		s.logger.Error().Err(err).Msg("problem executing status template")
	}
}

type apiData struct {
	Time       string           `json:"time"`
	Date       string           `json:"date"`
	Valid      bool             `json:"valid"`
	SyncServer string           `json:"sync_server"`
	LastTry    *time.Time       `json:"last_sync_attempt,omitempty"`
	LastOK     *time.Time       `json:"last_sync,omitempty"`
	SyncError  string           `json:"sync_error,omitempty"`
	Reading    *sensors.Reading `json:"reading,omitempty"`
}

func (s *Server) serveData(w http.ResponseWriter, req *http.Request) {
	st := s.status()
	data := apiData{
		Time:       st.Now.String(),
		Date:       st.Now.DateString(),
		Valid:      st.Now.Valid,
		SyncServer: st.Sync.Server,
	}
	if !st.Sync.LastTry.IsZero() {
		data.LastTry = &st.Sync.LastTry
	}
	if !st.Sync.LastOK.IsZero() {
		data.LastOK = &st.Sync.LastOK
	}
	if st.Sync.LastErr != nil {
		data.SyncError = st.Sync.LastErr.Error()
	}
	if st.HaveReading {
		data.Reading = &st.Reading
	}
	w.Header().Set("content-type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("problem encoding api response")
	}
}
