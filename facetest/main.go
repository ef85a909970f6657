// Command facetest exercises the LED rings without the rest of the daemon:
// it drives the face from a fake wall clock that runs fast, so the hourly
// animation and night dimming can be eyeballed in a minute instead of a day.
// Watch it at http://localhost:8080/display.png if no strand is attached.
package main

import (
	"context"
	"flag"
	"image/color"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrockway/periphflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/jrockway/deskclock/face"
	"github.com/jrockway/deskclock/strip"
	"github.com/jrockway/deskclock/timekeeper"
)

var (
	bind    = flag.String("bind", ":8080", "address to bind for the preview/metrics server")
	speedup = flag.Int("speedup", 60, "how many displayed seconds pass per real second")
	budget  = flag.Float64("power-budget", 0, "power budget in watts, 0 for none")
	animate = flag.Bool("animate", true, "run the sweep animation at the top of every minute")
	spiDev  string
)

func main() {
	if _, err := host.Init(); err != nil {
		log.Fatalf("init periph host: %v", err)
	}
	periphflag.SPIDevVar(&spiDev, "spi", "", "spi port the strand is on (empty for preview only)")
	flag.Parse()

	var port spi.PortCloser
	if spiDev != "" {
		var err error
		port, err = spireg.Open(spiDev)
		if err != nil {
			log.Fatalf("open spi port %q: %v", spiDev, err)
		}
	}

	strand, err := strip.New(port, &strip.Opts{PowerBudget: *budget})
	if err != nil {
		log.Fatalf("init strand: %v", err)
	}

	f, err := face.New(strand.Minutes(), strand.Hours(), strand, face.Options{
		Palette: face.Palette{
			Second:  color.NRGBA{R: 0xff, A: 0xff},
			Minute:  color.NRGBA{G: 0xff, A: 0xff},
			Hour:    color.NRGBA{B: 0xff, A: 0xff},
			Overlap: color.NRGBA{R: 0xff, G: 0xff, A: 0xff},
		},
		Night:    face.NightSchedule{StartHour: 22, EndHour: 7, Level: 50, DayLevel: 255},
		TestMode: *animate,
	})
	if err != nil {
		log.Fatalf("init face: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	http.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/display.png", http.StatusFound)
	})
	http.Handle("/display.png", strand)
	http.Handle("/metrics", promhttp.Handler())

	httpDoneCh := make(chan error)
	httpServer := http.Server{Addr: *bind}
	go func() {
		log.Printf("http server listening on %s", httpServer.Addr)
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	loopDoneCh := make(chan error)
	go func() {
		err := runFace(ctx, f, *speedup)
		select {
		case loopDoneCh <- err:
		case <-ctx.Done():
		}
		close(loopDoneCh)
	}()

	httpAlive := true
	select {
	case err := <-httpDoneCh:
		log.Printf("http server died: %v", err)
		httpAlive = false
	case err := <-loopDoneCh:
		log.Printf("face loop died: %v", err)
	case <-sigCh:
		log.Printf("interrupt")
	}
	signal.Stop(sigCh)
	cancel()
	strand.Blank()
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		httpServer.Shutdown(tctx)
		c()
	}
	os.Exit(1)
}

// runFace advances a fake clock by one displayed second per tick.  It starts
// just before the top of an hour so the sweep shows up right away.
func runFace(ctx context.Context, f *face.Face, speedup int) error {
	if speedup < 1 {
		speedup = 1
	}
	cur := time.Date(2000, 1, 1, 9, 59, 30, 0, time.UTC)
	tick := time.NewTicker(time.Second / time.Duration(speedup))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		cur = cur.Add(time.Second)
		if err := f.Render(timekeeper.FromTime(cur, true)); err != nil {
			return err
		}
	}
}
