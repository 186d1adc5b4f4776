// Package engine runs the resilient stream loop: one cycle per broker
// connection, a background level loader per cycle, and a supervisor that
// restarts cycles with backoff.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	FeedSymbol string
	// BrokerSymbol overrides the contract the broker resolved at login.
	BrokerSymbol string

	EntryDelay   time.Duration
	MaxIdle      time.Duration
	OrderTimeout time.Duration

	LevelFetchMaxAttempts int
	LevelPeriod           time.Duration
	RevalidateEvery       int // loader iterations between broker session checks

	QuoteCount   int
	QuoteTimeout time.Duration

	ResetPause     time.Duration
	StreamLookback time.Duration
	AliveEvery     time.Duration
	MinSleep       time.Duration
}

func (c *Config) applyDefaults() {
	if c.EntryDelay < 0 {
		c.EntryDelay = 0
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 300 * time.Second
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 90 * time.Second
	}
	if c.LevelFetchMaxAttempts <= 0 {
		c.LevelFetchMaxAttempts = 1
	}
	if c.LevelPeriod <= 0 {
		c.LevelPeriod = 60 * time.Second
	}
	if c.RevalidateEvery <= 0 {
		c.RevalidateEvery = 60
	}
	if c.QuoteCount <= 0 {
		c.QuoteCount = 5
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = 3 * time.Second
	}
	if c.ResetPause <= 0 {
		c.ResetPause = 120 * time.Second
	}
	if c.StreamLookback <= 0 {
		c.StreamLookback = 5 * time.Minute
	}
	if c.AliveEvery <= 0 {
		c.AliveEvery = 5 * time.Minute
	}
	if c.MinSleep <= 0 {
		c.MinSleep = 60 * time.Second
	}
}

// Deps are the collaborators of the engine. Quotes, Bus, Journal and
// Metrics are optional.
type Deps struct {
	Clock     Clock
	Scheduler *session.Scheduler
	States    *state.Manager
	Feed      market.Feed
	Quotes    market.QuoteSource
	Broker    broker.Broker
	Bus       *events.Bus
	Journal   *persistence.Journal
	Metrics   *monitor.SystemMetrics
}

// Status is a snapshot of the stream connection for the ops API.
type Status struct {
	Connected   bool       `json:"connected"`
	Connection  int        `json:"connection"`
	Ticks       int        `json:"ticks"`
	LastTick    *time.Time `json:"last_tick,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
}

type Engine struct {
	cfg Config
	Deps

	loader *LevelLoader

	mu     sync.RWMutex
	status Status
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Scheduler == nil || deps.States == nil || deps.Feed == nil || deps.Broker == nil {
		return nil, errors.New("engine: scheduler, states, feed and broker are required")
	}
	if deps.Clock == nil {
		deps.Clock = NewClock(time.Local)
	}
	cfg.applyDefaults()
	e := &Engine{cfg: cfg, Deps: deps}
	e.loader = &LevelLoader{e: e}
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Reconnects is the number of broker connections made so far.
func (e *Engine) Reconnects() int { return e.States.Current().Reconnects() }

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	if s.LastTick != nil {
		t := *s.LastTick
		s.LastTick = &t
	}
	return s
}

func (e *Engine) updateStatus(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}

// notify publishes an operator alert. Delivery happens elsewhere and is
// best-effort.
func (e *Engine) notify(format string, args ...any) {
	if e.Bus == nil {
		return
	}
	if len(args) == 0 {
		e.Bus.Alert(format)
		return
	}
	e.Bus.Alert(fmt.Sprintf(format, args...))
}

func (e *Engine) publish(ev events.Event, payload any) {
	if e.Bus != nil {
		e.Bus.Publish(ev, payload)
	}
}

func (e *Engine) resetDay(now time.Time) {
	e.States.Reset(session.Date(now))
	e.notify(i18n.Get("NotifyNewDay"))
}

// RunCycle performs one connection lifecycle and reports how it ended.
// Feed faults end the cycle with OutcomeReconnectNeeded and a nil error;
// a non-nil error is for the supervisor to count.
func (e *Engine) RunCycle(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		e.updateStatus(func(s *Status) { s.LastOutcome = outcome.String() })
	}()

	now := e.Clock.Now()
	if session.IsResetMinute(now) {
		logger.Info(i18n.Get("ResetMinute"))
		e.resetDay(now)
		if err := e.Clock.Sleep(ctx, e.cfg.ResetPause); err != nil {
			return OutcomeDailyResetTriggered, err
		}
		return OutcomeDailyResetTriggered, nil
	}

	if e.States.Current().Date() != session.Date(now) {
		logger.Info(i18n.Get("NewDayDetected"))
		e.resetDay(now)
	}

	st := e.States.Current()
	if !e.Scheduler.ShouldBeScanning(now, st) && !st.HasActiveTrades() {
		wait := e.Scheduler.NextWakeDelay(now)
		if wait > e.cfg.MinSleep {
			if e.Scheduler.InWeekend(now) {
				logger.Infof(i18n.Get("WeekendSleep"), wait.Hours())
			} else {
				logger.Infof(i18n.Get("SleepingUntil"), wait.Minutes())
			}
			if err := e.Clock.Sleep(ctx, wait); err != nil {
				return OutcomeSessionComplete, err
			}
			return OutcomeSessionComplete, nil
		}
	}

	if err := e.Broker.Login(ctx); err != nil {
		if errors.Is(err, broker.ErrAuthRejected) {
			return OutcomeFatal, err
		}
		return OutcomeReconnectNeeded, fmt.Errorf("broker login: %w", err)
	}

	conn := e.States.Current().IncReconnects()
	e.Metrics.IncReconnect()
	logger.Infof(i18n.Get("CycleStart"), conn)
	e.updateStatus(func(s *Status) {
		s.Connected = true
		s.Connection = conn
		s.Ticks = 0
	})
	defer func() {
		e.updateStatus(func(s *Status) { s.Connected = false })
		logger.Infof(i18n.Get("CycleClosed"), conn)
	}()

	loaderCtx, cancelLoader := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.loader.Run(loaderCtx)
	}()
	// The loader is joined before the stream connection goes away.
	var sub market.Subscription
	defer func() {
		cancelLoader()
		wg.Wait()
		if sub != nil {
			sub.Close()
		}
	}()

	sub, err = e.Feed.Subscribe(ctx, e.cfg.FeedSymbol, market.IntervalMinute, now.Add(-e.cfg.StreamLookback))
	if err != nil {
		sub = nil
		if ctx.Err() != nil {
			return OutcomeReconnectNeeded, ctx.Err()
		}
		logger.Warnf(i18n.Get("SubscribeFailed"), err)
		e.notify(i18n.Get("NotifyConnLost"))
		e.publish(events.EventConnectionLost, events.ConnectionLost{Reason: err.Error()})
		return OutcomeReconnectNeeded, nil
	}

	return e.stream(ctx, sub, conn)
}

func (e *Engine) stream(ctx context.Context, sub market.Subscription, conn int) (Outcome, error) {
	idle := time.NewTimer(e.cfg.MaxIdle)
	defer idle.Stop()

	t := &tickState{conn: conn, lastAlive: time.Now()}
	for {
		select {
		case <-ctx.Done():
			return OutcomeReconnectNeeded, ctx.Err()

		case <-idle.C:
			secs := int(e.cfg.MaxIdle / time.Second)
			logger.Warnf(i18n.Get("IdleTimeout"), secs)
			e.Metrics.IncIdleTimeout()
			e.notify(i18n.Get("NotifyIdleTimeout"), secs)
			e.publish(events.EventConnectionLost, events.ConnectionLost{Reason: "idle timeout"})
			return OutcomeReconnectNeeded, nil

		case bar, ok := <-sub.Bars():
			if !ok {
				if ctx.Err() != nil {
					return OutcomeReconnectNeeded, ctx.Err()
				}
				if err := sub.Err(); err != nil {
					logger.Warnf(i18n.Get("StreamEnded"), err)
					e.notify(i18n.Get("NotifyStreamError"), truncate(err.Error(), 200))
					e.publish(events.EventConnectionLost, events.ConnectionLost{Reason: err.Error()})
				} else {
					logger.Infof(i18n.Get("StreamEnded"), "closed by peer")
					e.notify(i18n.Get("NotifyDisconnected"))
					e.publish(events.EventConnectionLost, events.ConnectionLost{Reason: "closed"})
				}
				return OutcomeReconnectNeeded, nil
			}
			resetTimer(idle, e.cfg.MaxIdle)

			started := time.Now()
			outcome, done := e.handleBar(ctx, bar, t)
			e.Metrics.ObserveTick(time.Since(started))
			if done {
				return outcome, nil
			}
			// Order placement can outlast MaxIdle; silence starts after it.
			resetTimer(idle, e.cfg.MaxIdle)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
