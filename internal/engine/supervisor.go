package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// ErrTooManyFailures is returned by Supervisor.Run after
// MaxConsecutiveErrors failed cycles in a row.
var ErrTooManyFailures = errors.New("too many consecutive cycle failures")

// Cycler runs one stream cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (Outcome, error)
	Reconnects() int
}

// SupervisorStatus is exposed through the ops API.
type SupervisorStatus struct {
	Running           bool      `json:"running"`
	Stopped           bool      `json:"stopped"`
	Cycles            int       `json:"cycles"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastOutcome       string    `json:"last_outcome,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
	LastCycleAt       time.Time `json:"last_cycle_at,omitempty"`
}

// Supervisor restarts cycles forever, backing off on consecutive errors.
type Supervisor struct {
	Cycle   Cycler
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics

	Cooldown             time.Duration
	MaxConsecutiveErrors int
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	// Sleep is replaceable for tests.
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status SupervisorStatus
}

func NewSupervisor(cycle Cycler, bus *events.Bus, metrics *monitor.SystemMetrics) *Supervisor {
	return &Supervisor{
		Cycle:                cycle,
		Bus:                  bus,
		Metrics:              metrics,
		Cooldown:             2 * time.Second,
		MaxConsecutiveErrors: 10,
		BaseBackoff:          30 * time.Second,
		MaxBackoff:           300 * time.Second,
		Sleep:                sleepCtx,
	}
}

// Backoff is BaseBackoff doubled per consecutive error, capped at
// MaxBackoff.
func (s *Supervisor) Backoff(consecutive int) time.Duration {
	if consecutive < 1 {
		consecutive = 1
	}
	d := s.BaseBackoff
	for i := 1; i < consecutive; i++ {
		d *= 2
		if d >= s.MaxBackoff {
			return s.MaxBackoff
		}
	}
	if d > s.MaxBackoff {
		return s.MaxBackoff
	}
	return d
}

func (s *Supervisor) Status() SupervisorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) update(fn func(*SupervisorStatus)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Supervisor) notify(format string, args ...any) {
	if s.Bus != nil {
		s.Bus.Alert(fmt.Sprintf(format, args...))
	}
}

// Run blocks until ctx ends (returning nil), a fatal outcome, or too many
// consecutive failures.
func (s *Supervisor) Run(ctx context.Context) error {
	s.update(func(st *SupervisorStatus) { st.Running = true })
	defer s.update(func(st *SupervisorStatus) { st.Running = false })

	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		outcome, err := s.runCycle(ctx)
		s.update(func(st *SupervisorStatus) {
			st.Cycles++
			st.LastOutcome = outcome.String()
			st.LastCycleAt = time.Now()
			st.LastError = ""
			if err != nil {
				st.LastError = err.Error()
			}
		})
		if s.Bus != nil {
			s.Bus.Publish(events.EventCycleFinished, events.CycleFinished{
				Outcome: outcome.String(), Err: err, Reconnects: s.Cycle.Reconnects(), Duration: time.Since(started),
			})
		}
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case outcome == OutcomeFatal:
			logger.Errorf(i18n.Get("FatalOutcome"), err)
			s.notify(i18n.Get("NotifyFatal"), errString(err))
			s.update(func(st *SupervisorStatus) { st.Stopped = true })
			return fmt.Errorf("fatal cycle outcome: %w", err)

		case err != nil:
			consecutive++
			s.update(func(st *SupervisorStatus) { st.ConsecutiveErrors = consecutive })
			s.Metrics.IncCycleError()
			logger.Errorf(i18n.Get("CycleFailed"), consecutive, s.MaxConsecutiveErrors, err)

			if consecutive == 1 || consecutive%3 == 0 {
				s.notify(i18n.Get("NotifyBotError"), consecutive)
			}
			if consecutive >= s.MaxConsecutiveErrors {
				logger.Errorf(i18n.Get("SupervisorStopped"), s.MaxConsecutiveErrors)
				s.notify(i18n.Get("NotifyStopped"), s.MaxConsecutiveErrors)
				s.update(func(st *SupervisorStatus) { st.Stopped = true })
				return ErrTooManyFailures
			}

			wait := s.Backoff(consecutive)
			logger.Infof(i18n.Get("RetryWait"), wait)
			if s.Sleep(ctx, wait) != nil {
				return nil
			}

		default:
			consecutive = 0
			s.update(func(st *SupervisorStatus) { st.ConsecutiveErrors = 0 })
			logger.Infof(i18n.Get("CycleCompleted"), outcome, s.Cycle.Reconnects())
		}

		if s.Sleep(ctx, s.Cooldown) != nil {
			return nil
		}
	}
}

// runCycle converts a panic inside the cycle into an error.
func (s *Supervisor) runCycle(ctx context.Context) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("cycle panic: %v\n%s", r, debug.Stack())
			outcome, err = OutcomeReconnectNeeded, fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.Cycle.RunCycle(ctx)
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
