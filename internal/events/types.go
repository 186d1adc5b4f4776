package events

import (
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
)

// Event enumerates topics inside the bot.
type Event string

const (
	EventAlert          Event = "alert"
	EventLevelsLoaded   Event = "levels.loaded"
	EventTradeOpened    Event = "trade.opened"
	EventTradeClosed    Event = "trade.closed"
	EventTradeError     Event = "trade.error"
	EventCycleFinished  Event = "cycle.finished"
	EventConnectionLost Event = "connection.lost"
)

// Alert is a preformatted operator message.
type Alert struct {
	Text string `json:"text"`
}

type LevelsLoaded struct {
	SessionID  session.ID            `json:"session_id"`
	Name       string                `json:"name"`
	Levels     state.ReferenceLevels `json:"levels"`
	EligibleAt time.Time             `json:"eligible_at"`
}

type TradeOpened struct {
	Trade state.ActiveTrade `json:"trade"`
}

type TradeClosed struct {
	Trade    state.ActiveTrade `json:"trade"`
	Reason   string            `json:"reason"`
	Price    string            `json:"price"`
	ClosedAt time.Time         `json:"closed_at"`
}

type TradeError struct {
	SessionID session.ID `json:"session_id"`
	Side      state.Side `json:"side"`
	Err       error      `json:"-"`
}

// CycleFinished reports each stream cycle result to observers.
type CycleFinished struct {
	Outcome    string        `json:"outcome"`
	Err        error         `json:"-"`
	Reconnects int           `json:"reconnects"`
	Duration   time.Duration `json:"duration"`
}

type ConnectionLost struct {
	Reason string `json:"reason"`
}
