// Package reconciliation runs at startup and checks the order journal
// against the persisted daily state.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// clockSkew tolerates the second resolution of journal timestamps.
const clockSkew = 2 * time.Second

// Service compares PENDING order intents with the active trades of the
// current DailyState.
type Service struct {
	journal *persistence.Journal
	states  *state.Manager
	bus     *events.Bus
}

// Report contains reconciliation results.
type Report struct {
	Timestamp time.Time
	Checked   int
	// Recovered intents matched an active trade; only the journal update
	// was lost.
	Recovered []db.OrderIntent
	// Orphans reached the broker but never the state file.
	Orphans []db.OrderIntent
}

func (r Report) HasDiffs() bool { return len(r.Orphans) > 0 }

func NewService(journal *persistence.Journal, states *state.Manager, bus *events.Bus) *Service {
	return &Service{journal: journal, states: states, bus: bus}
}

// Reconcile resolves every PENDING intent: intents backed by an active
// trade become COMMITTED, the rest ORPHANED with an operator alert.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{Timestamp: time.Now()}
	if s.journal == nil {
		return report, nil
	}

	pending, err := s.journal.PendingIntents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	report.Checked = len(pending)

	current := s.states.Current()
	trades := current.ActiveTrades()
	claimed := make(map[string]bool, len(trades))

	for _, in := range pending {
		if in.TradingDate == current.Date() {
			if t, ok := matchTrade(in, trades, claimed); ok {
				claimed[t.ID] = true
				if err := s.journal.ResolveIntent(ctx, in.ID, db.IntentResolution{
					Status:    db.IntentCommitted,
					TradeID:   t.ID,
					FillPrice: t.EntryPrice.String(),
				}); err != nil {
					return nil, err
				}
				report.Recovered = append(report.Recovered, in)
				continue
			}
		}

		if err := s.journal.ResolveIntent(ctx, in.ID, db.IntentResolution{
			Status: db.IntentOrphaned,
			Error:  "no matching active trade at startup",
		}); err != nil {
			return nil, err
		}
		report.Orphans = append(report.Orphans, in)
	}

	s.handleReport(report)
	return report, nil
}

func matchTrade(in db.OrderIntent, trades []state.ActiveTrade, claimed map[string]bool) (state.ActiveTrade, bool) {
	for _, t := range trades {
		if claimed[t.ID] || t.SessionID != session.ID(in.SessionID) || string(t.Side) != in.Side {
			continue
		}
		if !t.OpenedAt.IsZero() && !in.CreatedAt.IsZero() && t.OpenedAt.Before(in.CreatedAt.Add(-clockSkew)) {
			continue
		}
		return t, true
	}
	return state.ActiveTrade{}, false
}

func (s *Service) handleReport(report *Report) {
	if !report.HasDiffs() {
		logger.Info(i18n.Get("ReconClean"))
		return
	}
	for _, in := range report.Orphans {
		logger.Warnf(i18n.Get("ReconOrphan"), in.ID, in.Side, in.Symbol, in.SessionID)
		if s.bus != nil {
			s.bus.Alert(fmt.Sprintf(i18n.Get("NotifyOrphanIntent"), in.Side, in.Symbol, in.SessionName))
		}
	}
}
