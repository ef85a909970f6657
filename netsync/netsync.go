// Package netsync reconciles the clock against an NTP server.  It is a
// plain SNTP client: one UDP exchange per attempt, retried inside a fixed
// budget, feeding the result into the time authority.  On any failure the
// existing wall clock is left alone.
package netsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/facebookincubator/ntp/protocol/ntp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"
)

var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "time_syncs",
		Help: "count of network time sync attempts by result",
	}, []string{"result"})

	offsetMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "time_sync_offset_seconds",
		Help: "clock offset measured by the most recent successful sync",
	})
)

const (
	// Seconds between the NTP era 0 epoch (1900) and the Unix epoch.
	ntpEpochOffset = 2208988800

	// LI 0, version 4, mode 3 (client) and the mode we expect back.
	clientSettings = 0x23
	serverMode     = 4

	defaultBudget  = 5 * time.Second
	defaultAttempt = time.Second
	retryDelay     = 250 * time.Millisecond
)

// TimeSetter is the part of the time authority this package needs.
type TimeSetter interface {
	SetFromEpoch(epoch int64, loc *time.Location) error
}

// Syncer queries one NTP server and stores the result.
type Syncer struct {
	addr   string
	zone   *time.Location
	keeper TimeSetter
	logger zerolog.Logger
	events trace.EventLog

	budget  time.Duration
	attempt time.Duration

	mu       sync.Mutex
	lastTry  time.Time
	lastOK   time.Time
	lastErr  error
	everSync bool
}

// Status is a snapshot of sync state for the web page and the text panel.
type Status struct {
	Server   string
	LastTry  time.Time
	LastOK   time.Time
	LastErr  error
	EverSync bool
}

// New builds a Syncer.  server is a hostname or host:port; the NTP port is
// assumed when absent.
func New(server string, zone *time.Location, keeper TimeSetter, logger zerolog.Logger) *Syncer {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "123")
	}
	if zone == nil {
		zone = time.UTC
	}
	return &Syncer{
		addr:    server,
		zone:    zone,
		keeper:  keeper,
		logger:  logger.With().Str("component", "netsync").Logger(),
		events:  trace.NewEventLog("netsync", server),
		budget:  defaultBudget,
		attempt: defaultAttempt,
	}
}

// Sync performs one synchronization, blocking for at most the 5 second
// budget.  Without connectivity it fails fast; on any failure the time
// authority is not touched.
func (s *Syncer) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	s.mu.Lock()
	s.lastTry = time.Now()
	s.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		// Name resolution needs the network; treat this as "no
		// connectivity" and give up without burning the budget.
		return s.fail(fmt.Errorf("resolve %q: %w", s.addr, err))
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		target, offset, err := s.query(ctx, raddr)
		if err == nil {
			if err := s.keeper.SetFromEpoch(target.Unix(), s.zone); err != nil {
				return s.fail(fmt.Errorf("store synced time: %w", err))
			}
			s.ok(target, offset, attempt)
			return nil
		}
		lastErr = err
		s.events.Errorf("attempt %d: %v", attempt, err)
		select {
		case <-ctx.Done():
			return s.fail(fmt.Errorf("no sync within %v: %w (last attempt: %v)", s.budget, ctx.Err(), lastErr))
		case <-time.After(retryDelay):
		}
	}
}

// query runs a single client/server exchange and returns the corrected
// current time along with the measured offset.
func (s *Syncer) query(ctx context.Context, raddr *net.UDPAddr) (time.Time, time.Duration, error) {
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("dial %v: %w", raddr, err)
	}
	defer conn.Close()
	deadline := time.Now().Add(s.attempt)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return time.Time{}, 0, fmt.Errorf("set deadline: %w", err)
	}

	t1 := time.Now()
	sec, frac := toNTPTime(t1)
	req := &ntp.Packet{Settings: clientSettings, TxTimeSec: sec, TxTimeFrac: frac}
	b, err := req.Bytes()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(b); err != nil {
		return time.Time{}, 0, fmt.Errorf("send request: %w", err)
	}
	resp, _, err := ntp.ReadNTPPacket(conn)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("read response: %w", err)
	}
	t4 := time.Now()

	if mode := resp.Settings & 0x07; mode != serverMode {
		return time.Time{}, 0, fmt.Errorf("response mode: got %d, want %d", mode, serverMode)
	}
	if resp.Stratum == 0 || resp.Stratum > 15 {
		return time.Time{}, 0, fmt.Errorf("unusable stratum %d", resp.Stratum)
	}
	if resp.OrigTimeSec != sec || resp.OrigTimeFrac != frac {
		return time.Time{}, 0, errors.New("originate timestamp does not match our request")
	}

	t2 := fromNTPTime(resp.RxTimeSec, resp.RxTimeFrac)
	t3 := fromNTPTime(resp.TxTimeSec, resp.TxTimeFrac)
	offset := (t2.Sub(t1) + t3.Sub(t4)) / 2
	return t4.Add(offset), offset, nil
}

// Run syncs once at startup and then daily at syncHour local time.  A send
// on trigger forces an immediate sync (the settings menu's "sync now").
func (s *Syncer) Run(ctx context.Context, syncHour int, trigger <-chan struct{}) error {
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("startup sync failed; will retry on schedule")
	}
	for {
		next := nextSyncTime(time.Now().In(s.zone), syncHour)
		s.events.Printf("next scheduled sync at %v", next)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-trigger:
			timer.Stop()
		}
		if err := s.Sync(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("scheduled sync failed")
		}
	}
}

// Status reports the most recent sync outcome.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Server:   s.addr,
		LastTry:  s.lastTry,
		LastOK:   s.lastOK,
		LastErr:  s.lastErr,
		EverSync: s.everSync,
	}
}

func (s *Syncer) ok(target time.Time, offset time.Duration, attempt int) {
	syncsTotal.WithLabelValues("success").Inc()
	offsetMetric.Set(offset.Seconds())
	s.mu.Lock()
	s.lastOK = time.Now()
	s.lastErr = nil
	s.everSync = true
	s.mu.Unlock()
	s.events.Printf("synced to %v (offset %v, attempt %d)", target, offset, attempt)
	s.logger.Info().Time("time", target).Dur("offset", offset).Int("attempt", attempt).Msg("time synced")
}

func (s *Syncer) fail(err error) error {
	syncsTotal.WithLabelValues("failure").Inc()
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.events.Errorf("sync failed: %v", err)
	return err
}

// nextSyncTime returns the next occurrence of hour o'clock after now.
func nextSyncTime(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func toNTPTime(t time.Time) (sec, frac uint32) {
	s := uint64(t.Unix() + ntpEpochOffset)
	f := uint64(t.Nanosecond()) << 32 / 1000000000
	return uint32(s), uint32(f)
}

func fromNTPTime(sec, frac uint32) time.Time {
	s := int64(sec) - ntpEpochOffset
	ns := int64(frac) * 1000000000 >> 32
	return time.Unix(s, ns)
}
