package binance

import (
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/market"

	"github.com/shopspring/decimal"
)

// Kline represents a single candlestick.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  int64 // ms
	CloseTime int64 // ms
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Final     bool
}

// Bar converts the kline to the feed-neutral bar.
func (k Kline) Bar() market.Bar {
	return market.Bar{
		Symbol:   k.Symbol,
		Interval: k.Interval,
		Time:     time.UnixMilli(k.OpenTime),
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
		Closed:   k.Final,
	}
}

// BookTicker holds best bid/ask.
type BookTicker struct {
	Symbol   string
	BidPrice decimal.Decimal
	AskPrice decimal.Decimal
	Time     time.Time
}
