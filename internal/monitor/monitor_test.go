package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSink) Send(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestMonitorForwardsAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &recordingSink{}
	metrics := NewSystemMetrics()
	m := NewMonitor(bus, sink, metrics)
	m.Limiter = rate.NewLimiter(rate.Inf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	bus.Alert("one")
	bus.Alert("two")
	bus.Publish(events.EventAlert, 42)

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	m.Wait()

	assert.Equal(t, []string{"one", "two"}, sink.msgs)
	assert.EqualValues(t, 2, metrics.GetSnapshot().NotifySent)
}

func TestMonitorSwallowsSinkErrors(t *testing.T) {
	bus := events.NewBus()
	sink := &recordingSink{err: errors.New("telegram down")}
	metrics := NewSystemMetrics()
	m := NewMonitor(bus, sink, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	bus.Alert("lost")

	require.Eventually(t, func() bool { return metrics.GetSnapshot().NotifyFailed == 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitorWithoutSinkIsNoop(t *testing.T) {
	m := &Monitor{Bus: events.NewBus()}
	m.Start(context.Background())
	m.Wait()
}

func TestLatencyHistogram(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{10, 1, 2, 3} {
		h.Record(v)
	}
	s := h.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.Equal(t, 2.0, s.Avg)
}

func TestSystemMetricsCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.IncTick(TickProcessed)
	m.IncTick(TickStale)
	m.IncTick(TickInvalid)
	m.IncEntry("LONG")
	m.IncExit("TARGET")
	m.IncExit("TARGET")
	m.IncExit("STOP")
	m.IncReconnect()
	m.IncIdleTimeout()
	m.IncCycleError()
	m.ObserveTick(2 * time.Millisecond)

	snap := m.GetSnapshot()
	assert.EqualValues(t, 1, snap.TicksProcessed)
	assert.EqualValues(t, 1, snap.TicksStale)
	assert.EqualValues(t, 1, snap.TicksInvalid)
	assert.Equal(t, map[string]uint64{"TARGET": 2, "STOP": 1}, snap.Exits)
	assert.NotNil(t, snap.LastTick)
	assert.Equal(t, 1, snap.TickLatency.Count)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.prom.exits.WithLabelValues("TARGET")))
	expected := `
# HELP bot_reconnects_total Stream connection attempts
# TYPE bot_reconnects_total counter
bot_reconnects_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bot_reconnects_total"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *SystemMetrics
	m.IncTick(TickProcessed)
	m.IncExit("STOP")
	m.ObserveTick(time.Millisecond)
	assert.Zero(t, m.GetSnapshot().TicksProcessed)
	assert.NotNil(t, m.Registry())
}

// slowSink takes delay per message and honours cancellation.
type slowSink struct {
	recordingSink
	delay time.Duration
}

func (s *slowSink) Send(ctx context.Context, msg string) error {
	select {
	case <-time.After(s.delay):
		return s.recordingSink.Send(ctx, msg)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStopDeliversQueuedAlerts(t *testing.T) {
	bus := events.NewBus()
	sink := &slowSink{delay: 100 * time.Millisecond}
	metrics := NewSystemMetrics()
	m := NewMonitor(bus, sink, metrics)

	m.Start(context.Background())
	bus.Alert("Bot Error #9")
	bus.Alert("STOPPED after 10 errors")
	m.Stop(time.Second)

	assert.Equal(t, []string{"Bot Error #9", "STOPPED after 10 errors"}, sink.msgs)
	assert.EqualValues(t, 2, metrics.GetSnapshot().NotifySent)
	assert.Equal(t, 0, bus.Alert("late"), "subscription is closed after Stop")
}

func TestStopGivesUpAfterGrace(t *testing.T) {
	bus := events.NewBus()
	sink := &slowSink{delay: time.Minute}
	metrics := NewSystemMetrics()
	m := NewMonitor(bus, sink, metrics)

	m.Start(context.Background())
	bus.Alert("stuck")

	started := time.Now()
	m.Stop(50 * time.Millisecond)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 0, sink.count())
	assert.EqualValues(t, 1, metrics.GetSnapshot().NotifyFailed)
}

func TestStopWithoutStart(t *testing.T) {
	m := NewMonitor(nil, nil, nil)
	m.Start(context.Background())
	m.Stop(time.Millisecond)
}
