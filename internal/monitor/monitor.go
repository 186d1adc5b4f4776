package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"golang.org/x/time/rate"
)

const (
	alertBuffer = 64
	sendTimeout = 5 * time.Second
)

// Monitor forwards bus alerts to the sink. Delivery is best-effort: a
// failed send is logged and never reaches the publisher.
type Monitor struct {
	Bus     *events.Bus
	Sink    AlertSink
	Limiter *rate.Limiter
	Metrics *SystemMetrics

	wg     sync.WaitGroup
	unsub  func()
	cancel context.CancelFunc
}

// NewMonitor paces deliveries at one per second with a burst of five,
// the rate Telegram tolerates for a single chat.
func NewMonitor(bus *events.Bus, sink AlertSink, metrics *SystemMetrics) *Monitor {
	return &Monitor{
		Bus:     bus,
		Sink:    sink,
		Limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		Metrics: metrics,
	}
}

// Start subscribes before returning so no alert published afterwards is
// missed. The forwarding goroutine ends with ctx or Stop.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		logger.Warn("monitor not fully configured; skipping")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	stream, unsub := m.Bus.Subscribe(events.EventAlert, alertBuffer)
	m.unsub = unsub
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				m.deliver(ctx, msg)
			}
		}
	}()
}

// Wait blocks until the forwarding goroutine has exited.
func (m *Monitor) Wait() { m.wg.Wait() }

// Stop closes the alert subscription and delivers what is already queued.
// Sends still pending after grace are cancelled.
func (m *Monitor) Stop(grace time.Duration) {
	if m.unsub == nil {
		return
	}
	m.unsub()

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		logger.Warnf(i18n.Get("NotifyGraceExpired"), grace)
		m.cancel()
		<-drained
	}
	m.cancel()
}

func (m *Monitor) deliver(ctx context.Context, msg any) {
	text := toString(msg)
	if text == "" {
		return
	}
	if m.Limiter != nil {
		if err := m.Limiter.Wait(ctx); err != nil {
			logger.Warn(i18n.Get("NotificationDropped"))
			m.Metrics.IncNotification(false)
			return
		}
	}
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := m.Sink.Send(sctx, text); err != nil {
		logger.Warnf(i18n.Get("NotificationFailed"), err)
		m.Metrics.IncNotification(false)
		return
	}
	m.Metrics.IncNotification(true)
}

func toString(v any) string {
	switch t := v.(type) {
	case events.Alert:
		return t.Text
	case string:
		return t
	default:
		return ""
	}
}
