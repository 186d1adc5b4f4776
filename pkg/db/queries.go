package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// SQL shared with the batch writer, which executes raw statements.
const (
	InsertTradeEventSQL = `
		INSERT INTO trade_events (trade_id, trading_date, kind, session_id, side, price, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	UpsertLevelsSQL = `
		INSERT INTO reference_levels (trading_date, session_id, high, low, eligible_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trading_date, session_id) DO UPDATE SET
			high = excluded.high,
			low = excluded.low,
			eligible_at = excluded.eligible_at`
)

// Queries groups the journal statements.
type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// Order intents
// ----------------------------------------

func (q *Queries) InsertIntent(ctx context.Context, in OrderIntent) error {
	if in.ID == "" {
		return errors.New("intent id is required")
	}
	if in.Status == "" {
		in.Status = IntentPending
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO order_intents (id, trading_date, session_id, session_name, side, symbol, signal_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, in.ID, in.TradingDate, in.SessionID, in.SessionName, in.Side, in.Symbol, in.SignalPrice, string(in.Status))
	if err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

// ResolveIntent moves an intent out of PENDING. Empty fields leave the
// stored value untouched.
func (q *Queries) ResolveIntent(ctx context.Context, id string, r IntentResolution) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE order_intents SET
			status = ?,
			trade_id = COALESCE(NULLIF(?, ''), trade_id),
			entry_order_id = COALESCE(NULLIF(?, ''), entry_order_id),
			complex_order_id = COALESCE(NULLIF(?, ''), complex_order_id),
			fill_price = COALESCE(NULLIF(?, ''), fill_price),
			error = COALESCE(NULLIF(?, ''), error),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(r.Status), r.TradeID, r.EntryOrderID, r.ComplexOrderID, r.FillPrice, r.Error, id)
	if err != nil {
		return fmt.Errorf("resolve intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve intent: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const intentColumns = `id, trading_date, session_id, session_name, side, symbol, signal_price, status,
	COALESCE(trade_id, ''), COALESCE(entry_order_id, ''), COALESCE(complex_order_id, ''),
	COALESCE(fill_price, ''), COALESCE(error, ''), created_at, updated_at`

func (q *Queries) GetIntent(ctx context.Context, id string) (OrderIntent, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM order_intents WHERE id = ?`, id)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderIntent{}, ErrNotFound
	}
	return in, err
}

// IntentsByStatus lists intents of one trading date, oldest first. An
// empty date matches every date.
func (q *Queries) IntentsByStatus(ctx context.Context, date string, status IntentStatus) ([]OrderIntent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+intentColumns+`
		FROM order_intents
		WHERE status = ? AND (? = '' OR trading_date = ?)
		ORDER BY created_at, id
	`, string(status), date, date)
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer rows.Close()

	var out []OrderIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIntent(s scanner) (OrderIntent, error) {
	var (
		in     OrderIntent
		status string
	)
	err := s.Scan(&in.ID, &in.TradingDate, &in.SessionID, &in.SessionName, &in.Side, &in.Symbol,
		&in.SignalPrice, &status, &in.TradeID, &in.EntryOrderID, &in.ComplexOrderID,
		&in.FillPrice, &in.Error, &in.CreatedAt, &in.UpdatedAt)
	in.Status = IntentStatus(status)
	return in, err
}

// ----------------------------------------
// Trade events and levels
// ----------------------------------------

func (q *Queries) InsertTradeEvent(ctx context.Context, e TradeEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx, InsertTradeEventSQL, TradeEventArgs(e)...)
	if err != nil {
		return fmt.Errorf("insert trade event: %w", err)
	}
	return nil
}

// TradeEventArgs orders e's fields for InsertTradeEventSQL.
func TradeEventArgs(e TradeEvent) []any {
	return []any{e.TradeID, e.TradingDate, string(e.Kind), e.SessionID, e.Side, e.Price, e.Reason, e.CreatedAt.UTC()}
}

func (q *Queries) TradeEventsByDate(ctx context.Context, date string) ([]TradeEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, trade_id, trading_date, kind, session_id, side, price, COALESCE(reason, ''), created_at
		FROM trade_events
		WHERE trading_date = ?
		ORDER BY id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	var out []TradeEvent
	for rows.Next() {
		var (
			e    TradeEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &e.TradeID, &e.TradingDate, &kind, &e.SessionID, &e.Side, &e.Price, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		e.Kind = TradeEventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LevelArgs orders r's fields for UpsertLevelsSQL.
func LevelArgs(r LevelRecord) []any {
	var eligible any
	if r.EligibleAt != nil {
		eligible = r.EligibleAt.UTC()
	}
	return []any{r.TradingDate, r.SessionID, r.High, r.Low, eligible}
}

func (q *Queries) LevelsByDate(ctx context.Context, date string) ([]LevelRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT trading_date, session_id, high, low, eligible_at
		FROM reference_levels
		WHERE trading_date = ?
		ORDER BY session_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	var out []LevelRecord
	for rows.Next() {
		var (
			r        LevelRecord
			eligible sql.NullTime
		)
		if err := rows.Scan(&r.TradingDate, &r.SessionID, &r.High, &r.Low, &eligible); err != nil {
			return nil, fmt.Errorf("scan levels: %w", err)
		}
		if eligible.Valid {
			t := eligible.Time
			r.EligibleAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
