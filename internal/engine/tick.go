package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/risk"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/internal/strategy"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type tickState struct {
	conn      int
	ticks     int
	lastAlive time.Time
}

// handleBar runs the per-tick pipeline. done reports that the cycle must
// end with outcome.
func (e *Engine) handleBar(ctx context.Context, bar market.Bar, t *tickState) (outcome Outcome, done bool) {
	now := e.Clock.Now()

	t.ticks++
	e.updateStatus(func(s *Status) {
		s.Ticks = t.ticks
		s.LastTick = &now
	})
	if time.Since(t.lastAlive) > e.cfg.AliveEvery {
		logger.Infof(i18n.Get("AliveLog"), t.ticks, t.conn)
		t.lastAlive = time.Now()
	}

	if session.IsResetMinute(now) {
		logger.Info(i18n.Get("MidnightReset"))
		e.resetDay(now)
		return OutcomeDailyResetTriggered, true
	}
	if e.States.Current().Date() != session.Date(now) {
		logger.Info(i18n.Get("NewDayDetected"))
		e.resetDay(now)
		return OutcomeDailyResetTriggered, true
	}

	if !bar.Valid() {
		e.Metrics.IncTick(monitor.TickInvalid)
		logger.Debugf(i18n.Get("InvalidTick"), bar.Close, bar.High, bar.Low)
		return 0, false
	}
	if bar.Stale(now) {
		e.Metrics.IncTick(monitor.TickStale)
		logger.Infof(i18n.Get("StaleTick"), bar.Age(now).Seconds())
	}
	if !bar.IsMinute() {
		return 0, false
	}
	e.Metrics.IncTick(monitor.TickProcessed)

	e.processExits(ctx, bar.Close, now)
	inWindow := e.processEntries(ctx, bar.Close, now)

	if !inWindow && !e.States.Current().HasActiveTrades() {
		logger.Info(i18n.Get("SessionsComplete"))
		return OutcomeSessionComplete, true
	}
	return 0, false
}

// processExits closes every trade whose exit condition holds on this
// tick and saves once.
func (e *Engine) processExits(ctx context.Context, closePrice decimal.Decimal, now time.Time) {
	st := e.States.Current()
	trades := st.ActiveTrades()
	if len(trades) == 0 {
		return
	}

	type exit struct {
		trade  state.ActiveTrade
		signal *strategy.ExitSignal
	}
	var exits []exit
	for _, tr := range trades {
		if sig := strategy.CheckExit(tr, closePrice, now.Hour()); sig != nil {
			exits = append(exits, exit{trade: tr, signal: sig})
		}
	}
	if len(exits) == 0 {
		return
	}

	quotes := e.quoteBlock(ctx)
	ids := make([]string, 0, len(exits))
	for _, x := range exits {
		tr, reason := x.trade, string(x.signal.Reason)
		e.notify(i18n.Get("NotifyExit"), reason, tr.SessionName, tr.Side, tr.EntryPrice, x.signal.Price, quotes)
		logger.Infof(i18n.Get("TradeComplete"), tr.SessionName, tr.Side, reason)
		e.Metrics.IncExit(reason)
		e.Journal.TradeClosed(st.Date(), tr, reason, x.signal.Price, now)
		e.publish(events.EventTradeClosed, events.TradeClosed{
			Trade: tr, Reason: reason, Price: x.signal.Price.String(), ClosedAt: now,
		})
		ids = append(ids, tr.ID)
	}
	st.CloseTrades(ids...)
	_ = e.States.Save()
}

// processEntries evaluates every window in session-id order and reports
// whether any window is open at now.
func (e *Engine) processEntries(ctx context.Context, closePrice decimal.Decimal, now time.Time) bool {
	st := e.States.Current()
	hour := now.Hour()
	inWindow := false

	for _, w := range e.Scheduler.Windows() {
		if !risk.IsInSessionWindow(w, hour) {
			continue
		}
		inWindow = true

		counter, ok := st.Counter(w.ID)
		var cp *state.Counter
		if ok {
			cp = &counter
		}
		if !risk.IsTradeEligible(cp, now, st.EligibleTime(w.ID)) {
			continue
		}
		lv := st.Levels(w.ID)
		if lv == nil {
			continue
		}
		sig := strategy.CheckEntry(closePrice, lv.High, lv.Low)
		if sig == nil {
			continue
		}
		if !risk.CanTakeDirection(sig.Side, counter) {
			continue
		}
		e.enter(ctx, st, w, sig, now)
	}
	return inWindow
}

func (e *Engine) enter(ctx context.Context, st *state.DailyState, w session.Window, sig *strategy.EntrySignal, now time.Time) {
	quotes := e.quoteBlock(ctx)

	intentID, err := e.Journal.RecordIntent(ctx, persistence.Intent{
		Date:        st.Date(),
		SessionID:   w.ID,
		SessionName: w.Name,
		Side:        sig.Side,
		Symbol:      e.cfg.BrokerSymbol,
		SignalPrice: sig.Price,
	})
	if err != nil {
		logger.Errorf(i18n.Get("JournalWriteFailed"), err)
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	res, err := e.Broker.PlaceBracket(octx, broker.BracketRequest{
		Symbol:         e.cfg.BrokerSymbol,
		Side:           brokerSide(sig.Side),
		Target:         w.Target,
		Stop:           w.Stop,
		ReferencePrice: sig.Price,
	})
	cancel()
	if err != nil {
		e.notify(i18n.Get("NotifyTradeError"), err.Error())
		e.Metrics.IncTradeError()
		e.publish(events.EventTradeError, events.TradeError{SessionID: w.ID, Side: sig.Side, Err: err})
		e.resolveIntent(ctx, intentID, db.IntentResolution{
			Status: db.IntentRejected, EntryOrderID: res.EntryOrderID, Error: err.Error(),
		})
		return
	}

	trade := state.ActiveTrade{
		ID:          uuid.NewString(),
		Side:        sig.Side,
		TargetPrice: res.TargetPrice,
		StopPrice:   res.StopPrice,
		SessionName: w.Name,
		CutoffHour:  w.CutoffHour(),
		SessionID:   w.ID,
		EntryPrice:  res.FillPrice,
		OpenedAt:    now,
	}
	counter, err := st.OpenTrade(trade)
	if err != nil {
		// The position is live at the broker but cannot be tracked.
		logger.Errorf(i18n.Get("TradeCapReached"), w.Name, err)
		e.notify(i18n.Get("NotifyTradeError"), fmt.Sprintf("%s %s filled but not tracked: %v", w.Name, sig.Side, err))
		e.resolveIntent(ctx, intentID, db.IntentResolution{
			Status: db.IntentOrphaned, EntryOrderID: res.EntryOrderID, ComplexOrderID: res.ComplexOrderID, Error: err.Error(),
		})
		return
	}
	// An unsaved trade keeps its intent PENDING for startup reconciliation.
	if err := e.States.Save(); err == nil {
		e.resolveIntent(ctx, intentID, db.IntentResolution{
			Status:         db.IntentCommitted,
			TradeID:        trade.ID,
			EntryOrderID:   res.EntryOrderID,
			ComplexOrderID: res.ComplexOrderID,
			FillPrice:      res.FillPrice.String(),
		})
	}

	tp, sl := strategy.BracketPrices(sig.Side, sig.Price, w.Target, w.Stop)
	e.notify(i18n.Get("NotifyEntry"), sig.Side, counter.Count, w.Name, sig.Price, tp, sl, quotes)
	logger.Infof(i18n.Get("TradeEntered"), w.Name, sig.Side, counter.Count)
	e.Metrics.IncEntry(string(sig.Side))
	e.Journal.TradeOpened(st.Date(), trade)
	e.publish(events.EventTradeOpened, events.TradeOpened{Trade: trade})
}

func (e *Engine) resolveIntent(ctx context.Context, id string, r db.IntentResolution) {
	if err := e.Journal.ResolveIntent(ctx, id, r); err != nil {
		logger.Errorf(i18n.Get("JournalWriteFailed"), err)
	}
}

func brokerSide(s state.Side) broker.Side {
	if s == state.Long {
		return broker.Buy
	}
	return broker.Sell
}

// quoteBlock renders recent quotes for a notification, or a placeholder
// when none arrive in time.
func (e *Engine) quoteBlock(ctx context.Context) string {
	quotes, err := market.FetchQuotes(ctx, e.Quotes, e.cfg.FeedSymbol, e.cfg.QuoteCount, e.cfg.QuoteTimeout)
	if err != nil || len(quotes) == 0 {
		if err != nil {
			logger.Debugf(i18n.Get("QuotesFetchFailed"), err)
		}
		return i18n.Get("QuotesUnavailable")
	}
	var b strings.Builder
	for _, q := range quotes {
		fmt.Fprintf(&b, "\nB: `%s` | A: `%s`", q.Bid, q.Ask)
	}
	return b.String()
}
