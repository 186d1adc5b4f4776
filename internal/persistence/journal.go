// Package persistence journals trading activity to sqlite. Order intents
// are written synchronously because reconciliation depends on them; trade
// events and levels go through the BatchWriter.
package persistence

import (
	"context"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal is nil-safe: every method on a nil *Journal is a no-op, so the
// engine can run without a database.
type Journal struct {
	q     *db.Queries
	batch *BatchWriter
}

func NewJournal(database *db.Database) *Journal {
	return &Journal{
		q:     database.Queries(),
		batch: NewBatchWriter(database.DB, 50, 500*time.Millisecond),
	}
}

// Intent describes an entry about to be sent to the broker.
type Intent struct {
	Date        string
	SessionID   session.ID
	SessionName string
	Side        state.Side
	Symbol      string
	SignalPrice decimal.Decimal
}

// RecordIntent stores a PENDING intent and returns its id.
func (j *Journal) RecordIntent(ctx context.Context, in Intent) (string, error) {
	id := uuid.NewString()
	if j == nil {
		return id, nil
	}
	err := j.q.InsertIntent(ctx, db.OrderIntent{
		ID:          id,
		TradingDate: in.Date,
		SessionID:   int(in.SessionID),
		SessionName: in.SessionName,
		Side:        string(in.Side),
		Symbol:      in.Symbol,
		SignalPrice: in.SignalPrice.String(),
		Status:      db.IntentPending,
	})
	return id, err
}

func (j *Journal) ResolveIntent(ctx context.Context, id string, r db.IntentResolution) error {
	if j == nil {
		return nil
	}
	return j.q.ResolveIntent(ctx, id, r)
}

// PendingIntents lists unresolved intents of date, or of every date when
// date is empty.
func (j *Journal) PendingIntents(ctx context.Context, date string) ([]db.OrderIntent, error) {
	if j == nil {
		return nil, nil
	}
	return j.q.IntentsByStatus(ctx, date, db.IntentPending)
}

func (j *Journal) TradeOpened(date string, t state.ActiveTrade) {
	if j == nil {
		return
	}
	j.batch.WriteQuery(db.InsertTradeEventSQL, db.TradeEventArgs(db.TradeEvent{
		TradeID:     t.ID,
		TradingDate: date,
		Kind:        db.TradeOpened,
		SessionID:   int(t.SessionID),
		Side:        string(t.Side),
		Price:       t.EntryPrice.String(),
		CreatedAt:   t.OpenedAt,
	})...)
}

func (j *Journal) TradeClosed(date string, t state.ActiveTrade, reason string, price decimal.Decimal, at time.Time) {
	if j == nil {
		return
	}
	j.batch.WriteQuery(db.InsertTradeEventSQL, db.TradeEventArgs(db.TradeEvent{
		TradeID:     t.ID,
		TradingDate: date,
		Kind:        db.TradeClosed,
		SessionID:   int(t.SessionID),
		Side:        string(t.Side),
		Price:       price.String(),
		Reason:      reason,
		CreatedAt:   at,
	})...)
}

func (j *Journal) LevelsLoaded(date string, id session.ID, lv state.ReferenceLevels, eligibleAt time.Time) {
	if j == nil {
		return
	}
	j.batch.WriteQuery(db.UpsertLevelsSQL, db.LevelArgs(db.LevelRecord{
		TradingDate: date,
		SessionID:   int(id),
		High:        lv.High.String(),
		Low:         lv.Low.String(),
		EligibleAt:  &eligibleAt,
	})...)
}

// TradeEvents flushes buffered writes and returns the events of date.
func (j *Journal) TradeEvents(ctx context.Context, date string) ([]db.TradeEvent, error) {
	if j == nil {
		return nil, nil
	}
	if err := j.batch.Flush(); err != nil {
		return nil, err
	}
	return j.q.TradeEventsByDate(ctx, date)
}

// Levels flushes buffered writes and returns the levels of date.
func (j *Journal) Levels(ctx context.Context, date string) ([]db.LevelRecord, error) {
	if j == nil {
		return nil, nil
	}
	if err := j.batch.Flush(); err != nil {
		return nil, err
	}
	return j.q.LevelsByDate(ctx, date)
}

func (j *Journal) Metrics() BatchWriterMetrics {
	if j == nil {
		return BatchWriterMetrics{}
	}
	return j.batch.GetMetrics()
}

// Close flushes pending writes. The database handle stays open.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.batch.Close()
}
