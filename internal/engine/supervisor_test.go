package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	outcome Outcome
	err     error
	panic   bool
}

// scriptedCycler replays steps, then cancels the run.
type scriptedCycler struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	cancel context.CancelFunc
}

func (c *scriptedCycler) RunCycle(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.steps) == 0 {
		c.cancel()
		return OutcomeReconnectNeeded, ctx.Err()
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	if s.panic {
		panic("boom")
	}
	return s.outcome, s.err
}

func (c *scriptedCycler) Reconnects() int { return c.calls }

type recordedSleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.d = append(r.d, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestSupervisor(t *testing.T, steps ...step) (*Supervisor, *scriptedCycler, *recordedSleeps, <-chan any, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventAlert, 64)
	t.Cleanup(unsub)

	cycler := &scriptedCycler{steps: steps, cancel: cancel}
	sleeps := &recordedSleeps{}
	s := NewSupervisor(cycler, bus, monitor.NewSystemMetrics())
	s.Sleep = sleeps.sleep
	return s, cycler, sleeps, alerts, ctx
}

func alertTexts(ch <-chan any) []string {
	var out []string
	for {
		select {
		case v := <-ch:
			out = append(out, v.(events.Alert).Text)
		default:
			return out
		}
	}
}

func TestSupervisorBackoff(t *testing.T) {
	s := NewSupervisor(nil, nil, nil)
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 300 * time.Second},
		{10, 300 * time.Second},
		{64, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, s.Backoff(tt.n))
		})
	}
}

func TestSupervisorStopsAfterTooManyFailures(t *testing.T) {
	steps := make([]step, 12)
	for i := range steps {
		steps[i] = step{outcome: OutcomeReconnectNeeded, err: errors.New("feed exploded")}
	}
	s, cycler, sleeps, alerts, ctx := newTestSupervisor(t, steps...)

	err := s.Run(ctx)
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, 10, cycler.calls)

	assert.Equal(t, []string{
		"Bot Error #1", "Bot Error #3", "Bot Error #6", "Bot Error #9", "STOPPED after 10 errors",
	}, alertTexts(alerts))

	// Backoff then cooldown after each of the first nine failures.
	require.Len(t, sleeps.d, 18)
	assert.Equal(t, 30*time.Second, sleeps.d[0])
	assert.Equal(t, 2*time.Second, sleeps.d[1])
	assert.Equal(t, 60*time.Second, sleeps.d[2])
	assert.Equal(t, 300*time.Second, sleeps.d[16])

	st := s.Status()
	assert.True(t, st.Stopped)
	assert.False(t, st.Running)
	assert.Equal(t, 10, st.ConsecutiveErrors)
	assert.Equal(t, "feed exploded", st.LastError)
}

func TestSupervisorSuccessResetsErrorCount(t *testing.T) {
	s, cycler, sleeps, alerts, ctx := newTestSupervisor(t,
		step{err: errors.New("one")},
		step{outcome: OutcomeSessionComplete},
		step{err: errors.New("two")},
		step{outcome: OutcomeDailyResetTriggered},
	)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 5, cycler.calls)
	assert.Equal(t, []string{"Bot Error #1", "Bot Error #1"}, alertTexts(alerts))
	assert.Equal(t, []time.Duration{
		30 * time.Second, 2 * time.Second,
		2 * time.Second,
		30 * time.Second, 2 * time.Second,
		2 * time.Second,
	}, sleeps.d)
	assert.Equal(t, 0, s.Status().ConsecutiveErrors)
}

func TestSupervisorFatalStopsImmediately(t *testing.T) {
	s, cycler, sleeps, alerts, ctx := newTestSupervisor(t,
		step{outcome: OutcomeFatal, err: fmt.Errorf("%w: bad password", broker.ErrAuthRejected)},
		step{outcome: OutcomeSessionComplete},
	)

	err := s.Run(ctx)
	require.ErrorIs(t, err, broker.ErrAuthRejected)
	assert.Equal(t, 1, cycler.calls)
	assert.Empty(t, sleeps.d)
	texts := alertTexts(alerts)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "*STOPPED*")
	assert.True(t, s.Status().Stopped)
}

func TestSupervisorRecoversPanics(t *testing.T) {
	s, cycler, _, alerts, ctx := newTestSupervisor(t, step{panic: true})

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, cycler.calls)
	assert.Equal(t, []string{"Bot Error #1"}, alertTexts(alerts))
}

func TestSupervisorPublishesCycleEvents(t *testing.T) {
	s, _, _, _, ctx := newTestSupervisor(t, step{outcome: OutcomeSessionComplete})
	finished, unsub := s.Bus.Subscribe(events.EventCycleFinished, 8)
	defer unsub()

	require.NoError(t, s.Run(ctx))
	first := (<-finished).(events.CycleFinished)
	assert.Equal(t, "SESSION_COMPLETE", first.Outcome)
	assert.NoError(t, first.Err)
	assert.Equal(t, 2, s.Status().Cycles)
}
