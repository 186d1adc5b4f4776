package market

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockFeed is an in-memory Feed. History is replayed on subscribe and
// Push fans a bar out to every live subscription of its interval.
type MockFeed struct {
	mu      sync.Mutex
	history map[string][]Bar
	subs    map[*Stream]string
	opened  map[string]int

	// SubscribeErr, when set, fails the next Subscribe calls.
	SubscribeErr error
	Quotes       []Quote
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		history: make(map[string][]Bar),
		subs:    make(map[*Stream]string),
		opened:  make(map[string]int),
	}
}

// AddHistory stores bars that are replayed to later subscriptions.
func (m *MockFeed) AddHistory(bars ...Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		m.history[b.Interval] = append(m.history[b.Interval], b)
	}
}

func (m *MockFeed) Subscribe(ctx context.Context, symbol, interval string, start time.Time) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}

	var replay []Bar
	for _, b := range m.history[interval] {
		if !b.Time.Before(start) {
			replay = append(replay, b)
		}
	}
	s := NewStream(len(replay)+64, nil)
	for _, b := range replay {
		s.Send(b)
	}
	m.subs[s] = interval
	m.opened[interval]++

	go func() {
		select {
		case <-ctx.Done():
		case <-s.Done():
		}
		s.Close()
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
	}()
	return s, nil
}

// Push delivers b to all live subscriptions of its interval and returns
// how many received it.
func (m *MockFeed) Push(b Bar) int {
	return m.PushTo(b.Interval, b)
}

// PushTo delivers b to the subscriptions of interval whatever b.Interval
// says, like a transport that mislabels its bars.
func (m *MockFeed) PushTo(interval string, b Bar) int {
	m.mu.Lock()
	targets := make([]*Stream, 0, len(m.subs))
	for s, iv := range m.subs {
		if iv == interval {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, s := range targets {
		if s.Send(b) {
			n++
		}
	}
	return n
}

// Fail ends every live subscription of interval with err.
func (m *MockFeed) Fail(interval string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s, iv := range m.subs {
		if iv == interval {
			s.Finish(err)
			delete(m.subs, s)
		}
	}
}

// Live is the number of open subscriptions of interval.
func (m *MockFeed) Live(interval string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, iv := range m.subs {
		if iv == interval {
			n++
		}
	}
	return n
}

// Opened is the number of subscriptions ever opened for interval.
func (m *MockFeed) Opened(interval string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened[interval]
}

func (m *MockFeed) RecentQuotes(ctx context.Context, symbol string, n int) ([]Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Quotes) == 0 {
		return nil, errors.New("no quotes")
	}
	if n > len(m.Quotes) {
		n = len(m.Quotes)
	}
	return append([]Quote{}, m.Quotes[:n]...), nil
}

// SeedHourly adds one hour bar per hour of day's date with a fixed range.
func (m *MockFeed) SeedHourly(symbol string, day time.Time, high, low float64) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	for h := 0; h < 24; h++ {
		m.AddHistory(Bar{
			Symbol:   symbol,
			Interval: IntervalHour,
			Time:     start.Add(time.Duration(h) * time.Hour),
			Open:     decimal.NewFromFloat((high + low) / 2),
			High:     decimal.NewFromFloat(high),
			Low:      decimal.NewFromFloat(low),
			Close:    decimal.NewFromFloat((high + low) / 2),
			Closed:   true,
		})
	}
}

// RandomWalk pushes synthetic minute bars every period until ctx ends.
func (m *MockFeed) RandomWalk(ctx context.Context, symbol string, start, step float64, period time.Duration) {
	price := start
	if price == 0 {
		price = 100
	}
	if step == 0 {
		step = 0.5
	}
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				price += (rand.Float64()*2 - 1) * step
				p := decimal.NewFromFloat(price).Round(2)
				m.Push(Bar{
					Symbol:   symbol,
					Interval: IntervalMinute,
					Time:     now.Truncate(time.Minute),
					Open:     p,
					High:     p,
					Low:      p,
					Close:    p,
				})
			}
		}
	}()
}
