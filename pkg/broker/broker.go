// Package broker defines the execution collaborator used by the engine.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAuthRejected means the broker refused the credentials. Retrying
	// will not help.
	ErrAuthRejected = errors.New("broker rejected credentials")
	// ErrOrderRejected covers entries the broker cancelled or rejected.
	ErrOrderRejected = errors.New("entry order rejected")
	// ErrFillTimeout is returned when the entry never reports filled.
	ErrFillTimeout = errors.New("timeout waiting for fill")
)

// Side of a bracket entry.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// BracketRequest is a one-lot entry with OCO exits at fixed distances
// from the fill.
type BracketRequest struct {
	Symbol string
	Side   Side
	Target decimal.Decimal
	Stop   decimal.Decimal
	// ReferencePrice is the signal price. Live brokers ignore it; the
	// paper broker fills around it.
	ReferencePrice decimal.Decimal
}

type BracketResult struct {
	EntryOrderID   string
	ComplexOrderID string
	FillPrice      decimal.Decimal
	TargetPrice    decimal.Decimal
	StopPrice      decimal.Decimal
}

// Broker places bracket orders for the engine.
type Broker interface {
	// Login authenticates and resolves the traded instrument. It retries
	// internally and wraps ErrAuthRejected when credentials are refused.
	Login(ctx context.Context) error
	// Revalidate checks the session and logs in again when it expired.
	Revalidate(ctx context.Context) bool
	PlaceBracket(ctx context.Context, req BracketRequest) (BracketResult, error)
}

// Exits returns target and stop prices for a fill.
func Exits(side Side, fill, target, stop decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if side == Buy {
		return fill.Add(target), fill.Sub(stop)
	}
	return fill.Sub(target), fill.Add(stop)
}
