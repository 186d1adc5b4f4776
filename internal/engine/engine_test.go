package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDate   = "2026-10-19"
	feedSymbol = "PAXGUSDT"
	waitFor    = 2 * time.Second
	pollEvery  = 5 * time.Millisecond
)

func at(h, m int) time.Time {
	return time.Date(2026, 10, 19, h, m, 0, 0, time.UTC)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Sleep advances the clock instantly.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration{}, c.sleeps...)
}

type fakeBroker struct {
	mu          sync.Mutex
	loginErr    error
	bracketErr  error
	fillDelay   time.Duration
	logins      int
	revalidates int
	requests    []broker.BracketRequest
}

func (b *fakeBroker) Login(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logins++
	return b.loginErr
}

func (b *fakeBroker) Revalidate(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revalidates++
	return true
}

// PlaceBracket fills at the reference price.
func (b *fakeBroker) PlaceBracket(ctx context.Context, req broker.BracketRequest) (broker.BracketResult, error) {
	b.mu.Lock()
	delay := b.fillDelay
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return broker.BracketResult{}, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.bracketErr != nil {
		return broker.BracketResult{}, b.bracketErr
	}
	tp, sl := broker.Exits(req.Side, req.ReferencePrice, req.Target, req.Stop)
	return broker.BracketResult{
		EntryOrderID:   fmt.Sprintf("E%d", len(b.requests)),
		ComplexOrderID: fmt.Sprintf("C%d", len(b.requests)),
		FillPrice:      req.ReferencePrice,
		TargetPrice:    tp,
		StopPrice:      sl,
	}, nil
}

func (b *fakeBroker) Logins() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logins
}

func (b *fakeBroker) Requests() []broker.BracketRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broker.BracketRequest{}, b.requests...)
}

type harness struct {
	engine   *Engine
	clock    *fakeClock
	feed     *market.MockFeed
	broker   *fakeBroker
	states   *state.Manager
	database *db.Database
	journal  *persistence.Journal
	metrics  *monitor.SystemMetrics
	alerts   <-chan any
	window   session.Window
}

func newHarness(t *testing.T, now time.Time, cfg Config) *harness {
	t.Helper()

	w := session.Window{
		ID: 22, Name: "London", RefHour: 9, StartHour: 10, EndHour: 12,
		Target: decimal.NewFromInt(10), Stop: decimal.NewFromInt(5),
	}
	table, err := session.NewTable([]session.Window{w})
	require.NoError(t, err)

	states := state.NewManager(state.NewStore(filepath.Join(t.TempDir(), "state.json")), table.IDs(), false)
	states.Reset(session.Date(now))

	database, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(database))
	journal := persistence.NewJournal(database)
	t.Cleanup(func() {
		_ = journal.Close()
		_ = database.Close()
	})

	bus := events.NewBus()
	alerts, unsub := bus.Subscribe(events.EventAlert, 256)
	t.Cleanup(unsub)

	feed := market.NewMockFeed()
	feed.Quotes = []market.Quote{{Bid: decimal.RequireFromString("100.9"), Ask: decimal.RequireFromString("101.1")}}

	if cfg.FeedSymbol == "" {
		cfg.FeedSymbol = feedSymbol
	}
	if cfg.BrokerSymbol == "" {
		cfg.BrokerSymbol = "/MESZ6"
	}
	if cfg.EntryDelay == 0 {
		cfg.EntryDelay = 5 * time.Minute
	}
	if cfg.LevelPeriod == 0 {
		cfg.LevelPeriod = time.Hour
	}

	h := &harness{
		clock:    &fakeClock{now: now},
		feed:     feed,
		broker:   &fakeBroker{},
		states:   states,
		database: database,
		journal:  journal,
		metrics:  monitor.NewSystemMetrics(),
		alerts:   alerts,
		window:   w,
	}
	h.engine, err = New(cfg, Deps{
		Clock:     h.clock,
		Scheduler: session.NewScheduler(table, session.DefaultWeekend()),
		States:    states,
		Feed:      feed,
		Quotes:    feed,
		Broker:    h.broker,
		Bus:       bus,
		Journal:   journal,
		Metrics:   h.metrics,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) setLevels(t *testing.T, high, low int64) {
	t.Helper()
	st := h.states.Current()
	require.NoError(t, st.SetLevels(h.window.ID, state.ReferenceLevels{High: decimal.NewFromInt(high), Low: decimal.NewFromInt(low)}))
	require.NoError(t, st.SetEligibleTime(h.window.ID, h.window.EligibleOn(h.clock.Now(), 5*time.Minute)))
}

type cycleResult struct {
	outcome Outcome
	err     error
}

func (h *harness) start(t *testing.T, ctx context.Context) <-chan cycleResult {
	t.Helper()
	done := make(chan cycleResult, 1)
	go func() {
		o, err := h.engine.RunCycle(ctx)
		done <- cycleResult{o, err}
	}()
	require.Eventually(t, func() bool { return h.feed.Live(market.IntervalMinute) == 1 }, waitFor, pollEvery)
	return done
}

func (h *harness) push(at time.Time, closePrice string) {
	p := decimal.RequireFromString(closePrice)
	h.clock.Set(at.Add(30 * time.Second))
	h.feed.Push(market.Bar{
		Symbol: feedSymbol, Interval: market.IntervalMinute, Time: at,
		Open: p, High: p, Low: p, Close: p,
	})
}

func (h *harness) drainAlerts() []string {
	var out []string
	for {
		select {
		case v := <-h.alerts:
			out = append(out, v.(events.Alert).Text)
		default:
			return out
		}
	}
}

func wait(t *testing.T, done <-chan cycleResult) cycleResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(waitFor):
		t.Fatal("cycle did not finish")
		return cycleResult{}
	}
}

func containsText(alerts []string, sub string) bool {
	for _, a := range alerts {
		if strings.Contains(a, sub) {
			return true
		}
	}
	return false
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	cfg := h.engine.Config()
	assert.Equal(t, 300*time.Second, cfg.MaxIdle)
	assert.Equal(t, 1, cfg.LevelFetchMaxAttempts)
	assert.Equal(t, 5, cfg.QuoteCount)
	assert.Equal(t, 120*time.Second, cfg.ResetPause)
	assert.Equal(t, 5*time.Minute, cfg.StreamLookback)
}

func TestBreakoutEntryAndStopExit(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	ctx := context.Background()
	done := h.start(t, ctx)

	// Inside the range and before eligibility: nothing happens.
	h.push(at(10, 0), "95")
	require.Eventually(t, func() bool { return h.engine.Status().Ticks == 1 }, waitFor, pollEvery)
	assert.Empty(t, h.broker.Requests())

	h.push(at(10, 6), "101")
	require.Eventually(t, func() bool { return h.states.Current().HasActiveTrades() }, waitFor, pollEvery)

	reqs := h.broker.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, broker.Buy, reqs[0].Side)
	assert.Equal(t, "/MESZ6", reqs[0].Symbol)
	assert.True(t, reqs[0].ReferencePrice.Equal(decimal.NewFromInt(101)))

	trade := h.states.Current().ActiveTrades()[0]
	assert.Equal(t, state.Long, trade.Side)
	assert.True(t, trade.EntryPrice.Equal(decimal.NewFromInt(101)))
	assert.True(t, trade.TargetPrice.Equal(decimal.NewFromInt(111)))
	assert.True(t, trade.StopPrice.Equal(decimal.NewFromInt(96)))
	assert.Equal(t, 12, trade.CutoffHour)

	counter, ok := h.states.Current().Counter(h.window.ID)
	require.True(t, ok)
	assert.Equal(t, state.Counter{Count: 1, Directions: []state.Side{state.Long}}, counter)

	h.push(at(10, 20), "96")
	require.Eventually(t, func() bool { return !h.states.Current().HasActiveTrades() }, waitFor, pollEvery)

	// Window closed with nothing open.
	h.push(at(12, 0), "97")
	r := wait(t, done)
	assert.Equal(t, OutcomeSessionComplete, r.outcome)
	assert.NoError(t, r.err)

	alerts := h.drainAlerts()
	assert.True(t, containsText(alerts, "*LONG #1* (London)"), alerts)
	assert.True(t, containsText(alerts, "TP: `111` | SL: `96`"), alerts)
	assert.True(t, containsText(alerts, "*STOP* - London LONG"), alerts)
	assert.True(t, containsText(alerts, "B: `100.9` | A: `101.1`"), alerts)

	committed, err := h.database.Queries().IntentsByStatus(ctx, testDate, db.IntentCommitted)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, trade.ID, committed[0].TradeID)

	evs, err := h.journal.TradeEvents(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	// The persisted document carries the counter.
	reloaded, err := h.states.Store().Load(testDate, h.states.SessionIDs())
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TradeCount(h.window.ID))
	assert.False(t, reloaded.HasActiveTrades())

	snap := h.metrics.GetSnapshot()
	assert.EqualValues(t, 1, snap.Entries)
	assert.EqualValues(t, 1, snap.Exits["STOP"])
	assert.EqualValues(t, 1, snap.Reconnects)
}

func TestBrokerErrorRejectsIntent(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	h.broker.bracketErr = fmt.Errorf("%w: margin", broker.ErrOrderRejected)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	h.push(at(10, 6), "89")
	require.Eventually(t, func() bool { return len(h.broker.Requests()) == 1 }, waitFor, pollEvery)
	require.Eventually(t, func() bool {
		rejected, err := h.database.Queries().IntentsByStatus(context.Background(), testDate, db.IntentRejected)
		return err == nil && len(rejected) == 1
	}, waitFor, pollEvery)

	cancel()
	r := wait(t, done)
	assert.Equal(t, OutcomeReconnectNeeded, r.outcome)
	assert.ErrorIs(t, r.err, context.Canceled)

	assert.False(t, h.states.Current().HasActiveTrades())
	assert.Equal(t, 0, h.states.Current().TradeCount(h.window.ID))
	assert.Equal(t, broker.Sell, h.broker.Requests()[0].Side)
	assert.True(t, containsText(h.drainAlerts(), "*TRADE ERROR*"))
}

func TestIdleTimeoutRequestsReconnect(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{MaxIdle: 50 * time.Millisecond})
	done := h.start(t, context.Background())

	r := wait(t, done)
	assert.Equal(t, OutcomeReconnectNeeded, r.outcome)
	assert.NoError(t, r.err)
	assert.True(t, containsText(h.drainAlerts(), "Idle timeout"))
	assert.EqualValues(t, 1, h.metrics.GetSnapshot().IdleTimeouts)
	assert.False(t, h.engine.Status().Connected)
}

func TestStreamErrorRequestsReconnect(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	done := h.start(t, context.Background())

	h.feed.Fail(market.IntervalMinute, errors.New("connection reset by peer"))
	r := wait(t, done)
	assert.Equal(t, OutcomeReconnectNeeded, r.outcome)
	assert.NoError(t, r.err)
	assert.True(t, containsText(h.drainAlerts(), "Error: connection reset by peer"))
}

func TestSubscribeFailureRequestsReconnect(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.feed.SubscribeErr = errors.New("dial tcp: refused")

	o, err := h.engine.RunCycle(context.Background())
	assert.Equal(t, OutcomeReconnectNeeded, o)
	assert.NoError(t, err)
	assert.True(t, containsText(h.drainAlerts(), "Connection lost"))
	assert.Equal(t, 1, h.engine.Reconnects())
}

func TestLoginFailures(t *testing.T) {
	t.Run("rejected credentials are fatal", func(t *testing.T) {
		h := newHarness(t, at(10, 0), Config{})
		h.broker.loginErr = fmt.Errorf("%w: bad password", broker.ErrAuthRejected)

		o, err := h.engine.RunCycle(context.Background())
		assert.Equal(t, OutcomeFatal, o)
		assert.ErrorIs(t, err, broker.ErrAuthRejected)
		assert.Equal(t, 0, h.feed.Opened(market.IntervalMinute))
	})

	t.Run("transient failure is counted", func(t *testing.T) {
		h := newHarness(t, at(10, 0), Config{})
		h.broker.loginErr = errors.New("503")

		o, err := h.engine.RunCycle(context.Background())
		assert.Equal(t, OutcomeReconnectNeeded, o)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, broker.ErrAuthRejected)
		assert.Equal(t, 0, h.engine.Reconnects())
	})
}

func TestResetMinuteBeforeConnecting(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 19, 23, 59, 10, 0, time.UTC), Config{})
	h.states.Current().IncReconnects()
	h.setLevels(t, 100, 90)

	o, err := h.engine.RunCycle(context.Background())
	assert.Equal(t, OutcomeDailyResetTriggered, o)
	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{120 * time.Second}, h.clock.Sleeps())
	assert.Equal(t, 0, h.broker.Logins())
	assert.Nil(t, h.states.Current().Levels(h.window.ID))
	// Reconnects survive the reset by default.
	assert.Equal(t, 1, h.states.Current().Reconnects())
	assert.True(t, containsText(h.drainAlerts(), "New Trading Day"))
}

func TestResetMinuteDuringStream(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	done := h.start(t, context.Background())

	h.push(at(23, 59), "95")
	r := wait(t, done)
	assert.Equal(t, OutcomeDailyResetTriggered, r.outcome)
	assert.NoError(t, r.err)
	assert.Nil(t, h.states.Current().Levels(h.window.ID))
}

func TestNewDateResetsThenSleeps(t *testing.T) {
	h := newHarness(t, at(13, 0), Config{})
	h.states.Reset("2026-10-18")

	o, err := h.engine.RunCycle(context.Background())
	assert.Equal(t, OutcomeSessionComplete, o)
	assert.NoError(t, err)
	assert.Equal(t, testDate, h.states.Current().Date())

	// 13:00 -> 23:59 reset boundary is nearer than tomorrow's 10:00 start.
	sleeps := h.clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 10*time.Hour+59*time.Minute+30*time.Second, sleeps[0])
	assert.Equal(t, 0, h.broker.Logins())
}

func TestActiveTradeKeepsScanningAfterWindow(t *testing.T) {
	h := newHarness(t, at(13, 0), Config{})
	_, err := h.states.Current().OpenTrade(state.ActiveTrade{
		ID: "t-1", Side: state.Short, SessionID: 22, SessionName: "London", CutoffHour: 12,
		EntryPrice: decimal.NewFromInt(89), TargetPrice: decimal.NewFromInt(79), StopPrice: decimal.NewFromInt(94),
	})
	require.NoError(t, err)
	done := h.start(t, context.Background())

	// Past the cutoff the trade is closed, then the cycle completes.
	h.push(at(13, 1), "88")
	r := wait(t, done)
	assert.Equal(t, OutcomeSessionComplete, r.outcome)
	assert.False(t, h.states.Current().HasActiveTrades())
	assert.True(t, containsText(h.drainAlerts(), "*CUTOFF*"))
}

func TestInvalidTickIsSkipped(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	h.push(at(10, 6), "0")
	require.Eventually(t, func() bool { return h.metrics.GetSnapshot().TicksInvalid == 1 }, waitFor, pollEvery)
	assert.Empty(t, h.broker.Requests())

	cancel()
	wait(t, done)
}

func TestNonMinuteBarIsSkipped(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	p := decimal.NewFromInt(101)
	h.clock.Set(at(10, 6).Add(30 * time.Second))
	h.feed.PushTo(market.IntervalMinute, market.Bar{
		Symbol: feedSymbol, Interval: market.IntervalHour, Time: at(10, 6),
		Open: p, High: p, Low: p, Close: p,
	})
	require.Eventually(t, func() bool { return h.engine.Status().Ticks == 1 }, waitFor, pollEvery)
	assert.Empty(t, h.broker.Requests())
	assert.False(t, h.states.Current().HasActiveTrades())
	assert.EqualValues(t, 0, h.metrics.GetSnapshot().TicksProcessed)

	cancel()
	wait(t, done)
}

func TestStaleBarIsStillProcessed(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{})
	h.setLevels(t, 100, 90)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	// Three minutes old by the time it arrives.
	p := decimal.NewFromInt(101)
	h.clock.Set(at(10, 9))
	h.feed.Push(market.Bar{
		Symbol: feedSymbol, Interval: market.IntervalMinute, Time: at(10, 6),
		Open: p, High: p, Low: p, Close: p,
	})
	require.Eventually(t, func() bool { return h.states.Current().HasActiveTrades() }, waitFor, pollEvery)

	snap := h.metrics.GetSnapshot()
	assert.EqualValues(t, 1, snap.TicksStale)
	assert.EqualValues(t, 1, snap.TicksProcessed)
	assert.EqualValues(t, 1, snap.Entries)
	require.Len(t, h.broker.Requests(), 1)

	cancel()
	wait(t, done)
}

func TestSlowOrderDoesNotCountAsIdle(t *testing.T) {
	h := newHarness(t, at(10, 0), Config{MaxIdle: 250 * time.Millisecond})
	h.setLevels(t, 100, 90)
	h.broker.fillDelay = 400 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(t, ctx)

	h.push(at(10, 6), "101")
	require.Eventually(t, func() bool { return h.states.Current().HasActiveTrades() }, waitFor, pollEvery)

	select {
	case r := <-done:
		t.Fatalf("cycle ended right after the order: %v", r.outcome)
	case <-time.After(100 * time.Millisecond):
	}
	assert.EqualValues(t, 0, h.metrics.GetSnapshot().IdleTimeouts)

	cancel()
	wait(t, done)
}

// teardownLog records the order in which a cycle releases its resources.
type teardownLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *teardownLog) add(step string) {
	l.mu.Lock()
	l.steps = append(l.steps, step)
	l.mu.Unlock()
}

func (l *teardownLog) Steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.steps...)
}

type loggedSubscription struct {
	market.Subscription
	log *teardownLog
}

func (s loggedSubscription) Close() {
	s.log.add("stream closed")
	s.Subscription.Close()
}

// hangingLevelsFeed serves minute bars from the mock and blocks every
// hourly fetch until it is cancelled.
type hangingLevelsFeed struct {
	*market.MockFeed
	log *teardownLog
}

func (f hangingLevelsFeed) Subscribe(ctx context.Context, symbol, interval string, start time.Time) (market.Subscription, error) {
	if interval == market.IntervalHour {
		f.log.add("levels requested")
		<-ctx.Done()
		f.log.add("levels cancelled")
		return nil, ctx.Err()
	}
	sub, err := f.MockFeed.Subscribe(ctx, symbol, interval, start)
	if err != nil {
		return nil, err
	}
	return loggedSubscription{Subscription: sub, log: f.log}, nil
}

func TestLoaderJoinedBeforeStreamCloses(t *testing.T) {
	h := newHarness(t, at(10, 2), Config{MaxIdle: 300 * time.Millisecond, LevelPeriod: 10 * time.Millisecond})
	log := &teardownLog{}
	h.engine.Feed = hangingLevelsFeed{MockFeed: h.feed, log: log}

	done := h.start(t, context.Background())
	require.Eventually(t, func() bool { return len(log.Steps()) > 0 }, waitFor, pollEvery)

	r := wait(t, done)
	assert.Equal(t, OutcomeReconnectNeeded, r.outcome)
	assert.NoError(t, r.err)
	assert.Equal(t, []string{"levels requested", "levels cancelled", "stream closed"}, log.Steps())
}

func TestLevelLoaderCheck(t *testing.T) {
	t.Run("loads once the window has started", func(t *testing.T) {
		h := newHarness(t, at(10, 2), Config{})
		h.feed.SeedHourly(feedSymbol, at(0, 0), 100, 90)

		h.engine.loader.Check(context.Background())
		st := h.states.Current()
		lv := st.Levels(h.window.ID)
		require.NotNil(t, lv)
		assert.True(t, lv.High.Equal(decimal.NewFromInt(100)))
		assert.True(t, lv.Low.Equal(decimal.NewFromInt(90)))
		require.NotNil(t, st.EligibleTime(h.window.ID))
		assert.True(t, at(10, 5).Equal(*st.EligibleTime(h.window.ID)))
		assert.Equal(t, 1, st.FetchAttempts(h.window.ID))
		assert.True(t, containsText(h.drainAlerts(), "*London Ready*"))

		h.engine.loader.Check(context.Background())
		assert.Equal(t, 1, h.feed.Opened(market.IntervalHour))
	})

	t.Run("waits for the window start", func(t *testing.T) {
		h := newHarness(t, at(9, 30), Config{})
		h.feed.SeedHourly(feedSymbol, at(0, 0), 100, 90)

		h.engine.loader.Check(context.Background())
		assert.Nil(t, h.states.Current().Levels(h.window.ID))
		assert.Equal(t, 0, h.feed.Opened(market.IntervalHour))
	})

	t.Run("failed fetch uses up the attempt", func(t *testing.T) {
		h := newHarness(t, at(10, 2), Config{})
		h.feed.SubscribeErr = errors.New("no route")

		h.engine.loader.Check(context.Background())
		h.engine.loader.Check(context.Background())
		assert.Nil(t, h.states.Current().Levels(h.window.ID))
		assert.Equal(t, 1, h.states.Current().FetchAttempts(h.window.ID))
		assert.EqualValues(t, 1, h.metrics.GetSnapshot().LevelFetchFails)
	})

	t.Run("more attempts when configured", func(t *testing.T) {
		h := newHarness(t, at(10, 2), Config{LevelFetchMaxAttempts: 3})
		h.feed.SubscribeErr = errors.New("no route")

		for i := 0; i < 5; i++ {
			h.engine.loader.Check(context.Background())
		}
		assert.Equal(t, 3, h.states.Current().FetchAttempts(h.window.ID))
	})

	t.Run("cancelled check records nothing", func(t *testing.T) {
		h := newHarness(t, at(10, 2), Config{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		h.engine.loader.Check(ctx)
		assert.Equal(t, 0, h.states.Current().FetchAttempts(h.window.ID))
	})
}

func TestLevelLoaderRun(t *testing.T) {
	h := newHarness(t, at(10, 2), Config{LevelPeriod: 10 * time.Millisecond, RevalidateEvery: 2})
	h.feed.SeedHourly(feedSymbol, at(0, 0), 100, 90)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.engine.loader.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return h.states.Current().Levels(h.window.ID) != nil }, waitFor, pollEvery)
	require.Eventually(t, func() bool {
		h.broker.mu.Lock()
		defer h.broker.mu.Unlock()
		return h.broker.revalidates > 0
	}, waitFor, pollEvery)

	cancel()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("loader did not stop")
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "RECONNECT_NEEDED", OutcomeReconnectNeeded.String())
	assert.Equal(t, "DAILY_RESET", OutcomeDailyResetTriggered.String())
	assert.Equal(t, "SESSION_COMPLETE", OutcomeSessionComplete.String())
	assert.Equal(t, "FATAL", OutcomeFatal.String())
}
