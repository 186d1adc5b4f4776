package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/state"
)

// LevelFetchTimeout bounds the secondary subscription used to read the
// reference bar.
const LevelFetchTimeout = 30 * time.Second

var (
	ErrLevelsUnavailable = errors.New("reference levels unavailable")
	ErrRefHourPending    = errors.New("reference hour not completed yet")
)

// FetchReferenceLevels reads the high and low of today's completed hour
// bar at refHour (local to now's location) through a short-lived
// subscription.
func FetchReferenceLevels(ctx context.Context, feed Feed, symbol string, refHour int, now time.Time) (state.ReferenceLevels, error) {
	refStart := time.Date(now.Year(), now.Month(), now.Day(), refHour, 0, 0, 0, now.Location())
	if now.Before(refStart) || now.Hour() == refHour {
		return state.ReferenceLevels{}, fmt.Errorf("%w: %02d:00", ErrRefHourPending, refHour)
	}

	ctx, cancel := context.WithTimeout(ctx, LevelFetchTimeout)
	defer cancel()

	sub, err := feed.Subscribe(ctx, symbol, IntervalHour, refStart)
	if err != nil {
		return state.ReferenceLevels{}, fmt.Errorf("subscribe %s %s: %w", symbol, IntervalHour, err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return state.ReferenceLevels{}, fmt.Errorf("%w: %v", ErrLevelsUnavailable, ctx.Err())
		case bar, ok := <-sub.Bars():
			if !ok {
				if err := sub.Err(); err != nil {
					return state.ReferenceLevels{}, fmt.Errorf("%w: %v", ErrLevelsUnavailable, err)
				}
				return state.ReferenceLevels{}, ErrLevelsUnavailable
			}
			bt := bar.Time.In(now.Location())
			if !sameDay(bt, refStart) || bt.Hour() != refHour || !bar.High.IsPositive() {
				continue
			}
			return state.ReferenceLevels{High: bar.High, Low: bar.Low}, nil
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FetchQuotes asks src for up to n recent quotes within timeout.
func FetchQuotes(ctx context.Context, src QuoteSource, symbol string, n int, timeout time.Duration) ([]Quote, error) {
	if src == nil {
		return nil, errors.New("no quote source")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return src.RecentQuotes(ctx, symbol, n)
}
