package db

import "time"

// IntentStatus tracks an order intent from placement to state commit.
type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentCommitted IntentStatus = "COMMITTED"
	IntentRejected  IntentStatus = "REJECTED"
	IntentOrphaned  IntentStatus = "ORPHANED"
)

// OrderIntent is written before a bracket is sent to the broker. Prices are
// decimal strings.
type OrderIntent struct {
	ID             string       `json:"id"`
	TradingDate    string       `json:"trading_date"`
	SessionID      int          `json:"session_id"`
	SessionName    string       `json:"session_name"`
	Side           string       `json:"side"`
	Symbol         string       `json:"symbol"`
	SignalPrice    string       `json:"signal_price"`
	Status         IntentStatus `json:"status"`
	TradeID        string       `json:"trade_id,omitempty"`
	EntryOrderID   string       `json:"entry_order_id,omitempty"`
	ComplexOrderID string       `json:"complex_order_id,omitempty"`
	FillPrice      string       `json:"fill_price,omitempty"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IntentResolution carries the fields set when an intent leaves PENDING.
type IntentResolution struct {
	Status         IntentStatus
	TradeID        string
	EntryOrderID   string
	ComplexOrderID string
	FillPrice      string
	Error          string
}

// TradeEventKind distinguishes opened and closed trade rows.
type TradeEventKind string

const (
	TradeOpened TradeEventKind = "OPENED"
	TradeClosed TradeEventKind = "CLOSED"
)

type TradeEvent struct {
	ID          int64          `json:"id"`
	TradeID     string         `json:"trade_id,omitempty"`
	TradingDate string         `json:"trading_date"`
	Kind        TradeEventKind `json:"kind"`
	SessionID   int            `json:"session_id"`
	Side        string         `json:"side"`
	Price       string         `json:"price"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LevelRecord is the reference range of one session on one day.
type LevelRecord struct {
	TradingDate string     `json:"trading_date"`
	SessionID   int        `json:"session_id"`
	High        string     `json:"high"`
	Low         string     `json:"low"`
	EligibleAt  *time.Time `json:"eligible_at,omitempty"`
}
