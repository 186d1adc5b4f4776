package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/market"
)

// backfillLimit is the maximum number of klines fetched before going live.
const backfillLimit = 500

// Feed combines a REST backfill with the live kline stream and serves
// book ticker snapshots as quotes.
type Feed struct {
	Client *Client
	Stream *StreamClient
}

func NewFeed(testnet bool) *Feed {
	return &Feed{Client: NewClient(testnet), Stream: NewStreamClient(testnet)}
}

// Subscribe dials the live stream first, then replays klines from start
// over REST so the consumer sees no gap.
func (f *Feed) Subscribe(ctx context.Context, symbol, interval string, start time.Time) (market.Subscription, error) {
	var backfill func(*market.Stream) error
	if !start.IsZero() {
		backfill = func(s *market.Stream) error {
			klines, err := f.Client.GetKlines(ctx, symbol, interval, backfillLimit, start.UnixMilli(), 0)
			if err != nil {
				return fmt.Errorf("backfill %s %s: %w", symbol, interval, err)
			}
			for _, k := range klines {
				if !s.Send(k.Bar()) {
					return nil
				}
			}
			return nil
		}
	}
	s, err := f.Stream.SubscribeKlines(ctx, symbol, interval, backfill)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecentQuotes collects up to n book ticker snapshots until ctx ends.
func (f *Feed) RecentQuotes(ctx context.Context, symbol string, n int) ([]market.Quote, error) {
	ch, stop, err := f.Stream.SubscribeBookTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}
	defer stop()

	quotes := make([]market.Quote, 0, n)
	for len(quotes) < n {
		select {
		case <-ctx.Done():
			if len(quotes) == 0 {
				return nil, ctx.Err()
			}
			return quotes, nil
		case bt, ok := <-ch:
			if !ok {
				if len(quotes) == 0 {
					return nil, errors.New("book ticker stream closed")
				}
				return quotes, nil
			}
			quotes = append(quotes, market.Quote{Bid: bt.BidPrice, Ask: bt.AskPrice, Time: bt.Time})
		}
	}
	return quotes, nil
}
