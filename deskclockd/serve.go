package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goiot/devices/monochromeoled"
	"github.com/rs/zerolog"
	oledi2c "golang.org/x/exp/io/i2c"
	"golang.org/x/net/trace"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/jrockway/deskclock/air"
	"github.com/jrockway/deskclock/config"
	"github.com/jrockway/deskclock/face"
	"github.com/jrockway/deskclock/influx"
	"github.com/jrockway/deskclock/netsync"
	"github.com/jrockway/deskclock/panel"
	"github.com/jrockway/deskclock/publish"
	"github.com/jrockway/deskclock/rtc"
	"github.com/jrockway/deskclock/sensors"
	"github.com/jrockway/deskclock/store"
	"github.com/jrockway/deskclock/strip"
	"github.com/jrockway/deskclock/timekeeper"
	"github.com/jrockway/deskclock/ui"
	"github.com/jrockway/deskclock/web"
)

const (
	// framePeriod is how often the display loop wakes up.  The tick channel
	// holds one pending tick, so anything comfortably under a second keeps
	// the seconds hand honest.
	framePeriod = 50 * time.Millisecond

	// historyRows is how much of the readings log the status page shows.
	historyRows = 10

	ipCacheFor = 30 * time.Second
)

// app owns every running component of the daemon.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	bus  i2c.BusCloser
	port spi.PortCloser

	strand  *strip.Strand
	face    *face.Face
	airBar  *air.Renderer
	ticker  *rtc.Ticker
	keeper  *timekeeper.Keeper
	syncer  *netsync.Syncer
	poller  *sensors.Poller
	hw      *sensors.Hardware
	db      *store.DB
	mqtt    *publish.Publisher
	menu    *ui.Menu
	oled    *panel.Panel
	buttons map[string]*ui.Button

	events chan ui.Event
	syncCh chan struct{}

	ipMu sync.Mutex
	ip   string
	ipAt time.Time
}

func runServe(cfg *config.Config, logger zerolog.Logger) error {
	// The debug pages have no auth of their own; the clock lives on a
	// trusted LAN.
	trace.AuthRequest = func(*http.Request) (bool, bool) { return true, true }
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	return a.run()
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init peripheral host: %w", err)
	}
	loc, err := cfg.Clock.Location()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		buttons: make(map[string]*ui.Button),
		events:  make(chan ui.Event, 4),
		syncCh:  make(chan struct{}, 1),
	}

	if cfg.Display.SPIDev != "" {
		a.port, err = spireg.Open(cfg.Display.SPIDev)
		if err != nil {
			return nil, fmt.Errorf("open spi port %q: %w", cfg.Display.SPIDev, err)
		}
	} else {
		logger.Warn().Msg("no spi device configured; driving the preview image only")
	}
	a.strand, err = strip.New(a.port, &strip.Opts{PowerBudget: cfg.Display.PowerBudget})
	if err != nil {
		return nil, fmt.Errorf("init led strand: %w", err)
	}

	if !cfg.Clock.System || !cfg.Sensors.Simulate {
		a.bus, err = i2creg.Open(cfg.Clock.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Clock.I2CBus, err)
		}
	}

	var dev rtc.Device
	if cfg.Clock.System {
		dev = rtc.NewSystemClock(loc)
		logger.Warn().Msg("using the host clock instead of a ds1307")
	} else if dev, err = rtc.NewDS1307(a.bus, loc); err != nil {
		return nil, err
	}
	var tickPin gpio.PinIO
	if cfg.Clock.TickPin != "" {
		if tickPin = gpioreg.ByName(cfg.Clock.TickPin); tickPin == nil {
			return nil, fmt.Errorf("tick pin %q not found", cfg.Clock.TickPin)
		}
	}
	a.ticker = rtc.NewTicker(tickPin, logger)
	a.keeper = timekeeper.New(dev, a.ticker.C(), logger)
	a.syncer = netsync.New(cfg.Clock.NTPServer, loc, a.keeper, logger)

	pal, night, err := faceOptions(cfg.Display)
	if err != nil {
		return nil, err
	}
	a.face, err = face.New(a.strand.Minutes(), a.strand.Hours(), a.strand, face.Options{Palette: pal, Night: night})
	if err != nil {
		return nil, fmt.Errorf("init clock face: %w", err)
	}
	airPal, err := airPalette(cfg.Air.Colors)
	if err != nil {
		return nil, err
	}
	a.airBar = air.NewRenderer(a.strand.Air(), airPal)

	var src sensors.Source
	if cfg.Sensors.Simulate {
		src = sensors.NewSimulator(time.Now().UnixNano())
		logger.Warn().Msg("simulating sensors")
	} else {
		a.hw, err = sensors.NewHardware(a.bus, sensors.HardwareOpts{
			IndoorAddr:  cfg.Sensors.IndoorAddr,
			OutdoorAddr: cfg.Sensors.OutdoorAddr,
			ADCAddr:     cfg.Sensors.ADCAddr,
			RLoad:       cfg.Sensors.RLoad,
			RZero:       cfg.Sensors.RZero,
		})
		if err != nil {
			return nil, err
		}
		src = a.hw
	}
	var sinks []sensors.Sink
	if cfg.Store.Path != "" {
		if a.db, err = store.Open(cfg.Store.Path, cfg.Store.MinInterval); err != nil {
			return nil, fmt.Errorf("open readings log %q: %w", cfg.Store.Path, err)
		}
		sinks = append(sinks, a.db)
	}
	if flux := influx.New(cfg.Influx.URL, cfg.Influx.Org, cfg.Influx.Bucket, cfg.Influx.Token); flux.Enabled() {
		sinks = append(sinks, flux)
	}
	if a.mqtt, err = publish.New(publish.Opts{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger); err != nil {
		return nil, err
	}
	if a.mqtt.Enabled() {
		sinks = append(sinks, a.mqtt)
	}
	a.poller = sensors.NewPoller(src, cfg.Sensors.Interval, logger, sinks...)

	a.menu = ui.NewMenu(ui.Actions{
		SyncNow: func() {
			select {
			case a.syncCh <- struct{}{}:
			default:
			}
		},
		SetNight:    a.face.SetNight,
		SetTestMode: a.face.SetTestMode,
	}, night, false)
	for kind, name := range map[ui.Kind]string{
		ui.ButtonMode:   cfg.Buttons.ModePin,
		ui.ButtonSelect: cfg.Buttons.SelectPin,
	} {
		if name == "" {
			continue
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("%v button pin %q not found", kind, name)
		}
		a.buttons[fmt.Sprintf("%v button", kind)] = ui.NewButton(kind, pin, cfg.Buttons.Debounce, logger)
	}
	if cfg.Panel.Device != "" {
		oled, err := monochromeoled.Open(&oledi2c.Devfs{Dev: cfg.Panel.Device})
		if err != nil {
			return nil, fmt.Errorf("open oled %q: %w", cfg.Panel.Device, err)
		}
		if a.oled, err = panel.New(oled); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusSrv := web.New(a.status, a.strand, a.logger)
	httpServer := &http.Server{Addr: a.cfg.HTTP.Bind, Handler: statusSrv.Handler()}

	errCh := make(chan error, 8)
	start := func(name string, f func(context.Context) error) {
		go func() {
			err := f(ctx)
			if err == nil {
				err = errors.New("exited")
			}
			select {
			case errCh <- fmt.Errorf("%s: %v", name, err):
			case <-ctx.Done():
			}
		}()
	}
	start("ticker", a.ticker.Run)
	start("time sync", func(ctx context.Context) error {
		return a.syncer.Run(ctx, a.cfg.Clock.SyncHour, a.syncCh)
	})
	start("sensor poller", a.poller.Run)
	start("display loop", a.displayLoop)
	for name, b := range a.buttons {
		b := b
		start(name, func(ctx context.Context) error {
			return b.Run(ctx, a.events)
		})
	}
	start("http server", func(context.Context) error {
		a.logger.Info().Str("bind", httpServer.Addr).Msg("http server listening")
		return httpServer.ListenAndServe()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		a.logger.Error().Err(err).Msg("component died")
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}
	signal.Stop(sigCh)
	cancel()

	tctx, tcancel := context.WithTimeout(context.Background(), time.Second)
	httpServer.Shutdown(tctx)
	tcancel()
	a.shutdown()
	return nil
}

// displayLoop is the render heart of the clock: consume a pending tick,
// redraw the rings and air bar, age the menu out, and refresh the panel.
func (a *app) displayLoop(ctx context.Context) error {
	frame := time.NewTicker(framePeriod)
	defer frame.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.events:
			a.menu.Handle(e)
		case <-frame.C:
		}
		if _, err := a.keeper.Tick(); err != nil {
			a.logger.Warn().Err(err).Msg("problem ticking")
		}
		now := a.keeper.Snapshot()
		if err := a.face.Render(now); err != nil {
			a.logger.Warn().Err(err).Msg("problem drawing the face")
		}
		if r, ok := a.poller.Last(); ok && r.HasAir {
			if err := a.airBar.Render(r.AirPPM); err != nil {
				a.logger.Warn().Err(err).Msg("problem drawing the air bar")
			}
		}
		a.menu.Expire(time.Now())
		if a.oled != nil {
			v := ui.View{Clock: now, IP: a.localIP(), LastSync: a.syncer.Status().LastOK}
			v.Reading, v.HaveReading = a.poller.Last()
			if err := a.oled.Show(a.menu.Render(v)); err != nil {
				a.logger.Warn().Err(err).Msg("problem drawing the panel")
			}
		}
	}
}

func (a *app) status() web.Status {
	st := web.Status{
		Now:  a.keeper.Snapshot(),
		Sync: a.syncer.Status(),
	}
	st.Reading, st.HaveReading = a.poller.Last()
	if a.db != nil {
		rows, err := a.db.Recent(historyRows)
		if err != nil {
			a.logger.Warn().Err(err).Msg("problem reading the readings log")
		} else {
			st.History = rows
		}
	}
	return st
}

func (a *app) shutdown() {
	if err := a.strand.Blank(); err != nil {
		a.logger.Warn().Err(err).Msg("problem blanking the strand")
	}
	if a.oled != nil {
		if err := a.oled.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("problem closing the panel")
		}
	}
	if a.hw != nil {
		if err := a.hw.Halt(); err != nil {
			a.logger.Warn().Err(err).Msg("problem halting the sensors")
		}
	}
	a.mqtt.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("problem closing the readings log")
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.port != nil {
		a.port.Close()
	}
}

// localIP picks the machine's first non-loopback IPv4 address for the
// network page, refreshing at most every 30 seconds.
func (a *app) localIP() string {
	a.ipMu.Lock()
	defer a.ipMu.Unlock()
	if time.Since(a.ipAt) < ipCacheFor && a.ip != "" {
		return a.ip
	}
	a.ipAt = time.Now()
	a.ip = ""
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if n, ok := addr.(*net.IPNet); ok && !n.IP.IsLoopback() {
			if ip4 := n.IP.To4(); ip4 != nil {
				a.ip = ip4.String()
				break
			}
		}
	}
	return a.ip
}

func faceOptions(cfg config.Display) (face.Palette, face.NightSchedule, error) {
	night := face.NightSchedule{
		StartHour: cfg.Night.StartHour,
		EndHour:   cfg.Night.EndHour,
		Level:     cfg.Night.Level,
		DayLevel:  cfg.Night.DayLevel,
	}
	var pal face.Palette
	var err error
	if pal.Second, err = config.ParseColor(cfg.Colors.Second); err != nil {
		return pal, night, err
	}
	if pal.Minute, err = config.ParseColor(cfg.Colors.Minute); err != nil {
		return pal, night, err
	}
	if pal.Hour, err = config.ParseColor(cfg.Colors.Hour); err != nil {
		return pal, night, err
	}
	if pal.Overlap, err = config.ParseColor(cfg.Colors.Overlap); err != nil {
		return pal, night, err
	}
	return pal, night, nil
}

func airPalette(cfg config.AirColors) (air.Palette, error) {
	var pal air.Palette
	var err error
	if pal.Excellent, err = config.ParseColor(cfg.Excellent); err != nil {
		return pal, err
	}
	if pal.Good, err = config.ParseColor(cfg.Good); err != nil {
		return pal, err
	}
	if pal.Moderate, err = config.ParseColor(cfg.Moderate); err != nil {
		return pal, err
	}
	if pal.Poor, err = config.ParseColor(cfg.Poor); err != nil {
		return pal, err
	}
	if pal.Unhealthy, err = config.ParseColor(cfg.Unhealthy); err != nil {
		return pal, err
	}
	if pal.Dangerous, err = config.ParseColor(cfg.Dangerous); err != nil {
		return pal, err
	}
	return pal, nil
}
