package strategy

import (
	"github.com/ShreymShah/breakout-trading-bot/internal/state"

	"github.com/shopspring/decimal"
)

// ExitReason names why a trade is closed.
type ExitReason string

const (
	ExitTarget ExitReason = "TARGET"
	ExitStop   ExitReason = "STOP"
	ExitCutoff ExitReason = "CUTOFF"
)

// EntrySignal is a breakout of the reference range.
type EntrySignal struct {
	Side  state.Side
	Price decimal.Decimal
}

// ExitSignal closes one active trade.
type ExitSignal struct {
	TradeID string
	Reason  ExitReason
	Price   decimal.Decimal
}

// CheckEntry fires LONG on a close strictly above high and SHORT on a
// close strictly below low. It assumes high > low.
func CheckEntry(closePrice, high, low decimal.Decimal) *EntrySignal {
	switch {
	case closePrice.GreaterThan(high):
		return &EntrySignal{Side: state.Long, Price: closePrice}
	case closePrice.LessThan(low):
		return &EntrySignal{Side: state.Short, Price: closePrice}
	}
	return nil
}

// CheckExit evaluates one trade. The session cutoff wins over target and
// stop on the same tick.
func CheckExit(t state.ActiveTrade, closePrice decimal.Decimal, hour int) *ExitSignal {
	exit := func(r ExitReason) *ExitSignal {
		return &ExitSignal{TradeID: t.ID, Reason: r, Price: closePrice}
	}
	if hour >= t.CutoffHour {
		return exit(ExitCutoff)
	}
	switch t.Side {
	case state.Long:
		if closePrice.GreaterThanOrEqual(t.TargetPrice) {
			return exit(ExitTarget)
		}
		if closePrice.LessThanOrEqual(t.StopPrice) {
			return exit(ExitStop)
		}
	case state.Short:
		if closePrice.LessThanOrEqual(t.TargetPrice) {
			return exit(ExitTarget)
		}
		if closePrice.GreaterThanOrEqual(t.StopPrice) {
			return exit(ExitStop)
		}
	}
	return nil
}

// BracketPrices returns the target and stop for an entry at price.
func BracketPrices(side state.Side, price, target, stop decimal.Decimal) (tp, sl decimal.Decimal) {
	if side == state.Long {
		return price.Add(target), price.Sub(stop)
	}
	return price.Sub(target), price.Add(stop)
}
