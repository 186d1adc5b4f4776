package state

import (
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Counter tracks today's entries of one session. Count always equals
// len(Directions).
type Counter struct {
	Count      int    `json:"count"`
	Directions []Side `json:"directions"`
}

func (c Counter) clone() Counter {
	return Counter{Count: c.Count, Directions: append([]Side{}, c.Directions...)}
}

// ReferenceLevels is the breakout range of a session for one day.
type ReferenceLevels struct {
	High decimal.Decimal `json:"high"`
	Low  decimal.Decimal `json:"low"`
}

// ActiveTrade is an open bracketed position.
type ActiveTrade struct {
	ID          string          `json:"id"`
	Side        Side            `json:"side"`
	TargetPrice decimal.Decimal `json:"tp"`
	StopPrice   decimal.Decimal `json:"sl"`
	SessionName string          `json:"sess_name"`
	CutoffHour  int             `json:"cutoff_h"`
	SessionID   session.ID      `json:"sess_id"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// Snapshot is the persisted JSON document of a DailyState. Session ids
// are rendered as decimal strings.
type Snapshot struct {
	LastResetDate  string                      `json:"last_reset_date"`
	TradesTaken    map[string]Counter          `json:"trades_taken"`
	ActiveTrades   []ActiveTrade               `json:"active_trades"`
	RefLevels      map[string]*ReferenceLevels `json:"ref_levels"`
	EligibleTime   map[string]*time.Time       `json:"session_trade_eligible_time"`
	FetchAttempted map[string]bool             `json:"fetch_attempted"`
	FetchAttempts  map[string]int              `json:"fetch_attempts,omitempty"`
}
