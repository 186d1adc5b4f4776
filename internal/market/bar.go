package market

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	IntervalMinute = "1m"
	IntervalHour   = "1h"

	// StaleAfter is the age past which a tick is logged as stale.
	StaleAfter = 120 * time.Second
)

// Bar is one OHLC aggregate as delivered by a feed. Live feeds resend
// the forming bar on every update, so each Bar is also a tick.
type Bar struct {
	Symbol   string
	Interval string
	Time     time.Time // bar open time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Closed   bool
}

// Valid rejects zero or negative prints.
func (b Bar) Valid() bool {
	return b.Close.IsPositive() && b.High.IsPositive() && b.Low.IsPositive()
}

// IsMinute reports whether the bar is a one-minute aggregate.
func (b Bar) IsMinute() bool {
	return b.Interval == IntervalMinute
}

// Age is how long ago the bar opened.
func (b Bar) Age(now time.Time) time.Duration {
	return now.Sub(b.Time)
}

// Stale reports an age beyond StaleAfter.
func (b Bar) Stale(now time.Time) bool {
	return b.Age(now) > StaleAfter
}
