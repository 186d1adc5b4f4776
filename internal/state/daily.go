package state

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrTradeCap       = errors.New("session trade cap reached")
	ErrLevelsFixed    = errors.New("reference levels already set for today")
)

// DailyState is everything that happened today. Every per-session map is
// populated for all configured sessions at construction. The mutex is
// held for single field updates only, never across I/O.
type DailyState struct {
	mu sync.Mutex

	date          string
	counters      map[session.ID]*Counter
	levels        map[session.ID]*ReferenceLevels
	eligible      map[session.ID]*time.Time
	fetchAttempts map[session.ID]int
	trades        []ActiveTrade

	// not persisted; carried across daily resets by the Manager
	reconnects int
}

// NewDailyState returns a zeroed state for date.
func NewDailyState(date string, ids []session.ID) *DailyState {
	d := &DailyState{
		date:          date,
		counters:      make(map[session.ID]*Counter, len(ids)),
		levels:        make(map[session.ID]*ReferenceLevels, len(ids)),
		eligible:      make(map[session.ID]*time.Time, len(ids)),
		fetchAttempts: make(map[session.ID]int, len(ids)),
		trades:        []ActiveTrade{},
	}
	for _, id := range ids {
		d.counters[id] = &Counter{Directions: []Side{}}
		d.levels[id] = nil
		d.eligible[id] = nil
		d.fetchAttempts[id] = 0
	}
	return d
}

func (d *DailyState) Date() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.date
}

// TradeCount implements session.TradeCounter.
func (d *DailyState) TradeCount(id session.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.counters[id]; ok {
		return c.Count
	}
	return 0
}

// Counter returns a copy of the session counter; ok is false for an
// unconfigured session.
func (d *DailyState) Counter(id session.ID) (Counter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.counters[id]
	if !ok {
		return Counter{}, false
	}
	return c.clone(), true
}

// Levels returns today's reference levels or nil when not yet loaded.
func (d *DailyState) Levels(id session.ID) *ReferenceLevels {
	d.mu.Lock()
	defer d.mu.Unlock()
	lv := d.levels[id]
	if lv == nil {
		return nil
	}
	cp := *lv
	return &cp
}

// SetLevels records the reference levels once per day.
func (d *DailyState) SetLevels(id session.ID, lv ReferenceLevels) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.levels[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	if cur != nil {
		return ErrLevelsFixed
	}
	d.levels[id] = &lv
	return nil
}

func (d *DailyState) EligibleTime(id session.ID) *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.eligible[id]
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func (d *DailyState) SetEligibleTime(id session.ID, t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.eligible[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}
	d.eligible[id] = &t
	return nil
}

// FetchAttempts is the number of reference-level fetches tried today.
func (d *DailyState) FetchAttempts(id session.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchAttempts[id]
}

// RecordFetchAttempt counts one fetch, successful or not.
func (d *DailyState) RecordFetchAttempt(id session.ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fetchAttempts[id]; !ok {
		return 0
	}
	d.fetchAttempts[id]++
	return d.fetchAttempts[id]
}

// OpenTrade appends a filled trade and books it against its session's
// counter in one step. It refuses to exceed the daily cap.
func (d *DailyState) OpenTrade(t ActiveTrade) (Counter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.counters[t.SessionID]
	if !ok {
		return Counter{}, fmt.Errorf("%w: %d", ErrUnknownSession, t.SessionID)
	}
	if c.Count >= session.MaxTradesPerSession {
		return c.clone(), ErrTradeCap
	}
	d.trades = append(d.trades, t)
	c.Count++
	c.Directions = append(c.Directions, t.Side)
	return c.clone(), nil
}

// CloseTrades removes the trades with the given ids and returns them.
func (d *DailyState) CloseTrades(ids ...string) []ActiveTrade {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.trades[:0]
	var removed []ActiveTrade
	for _, t := range d.trades {
		if drop[t.ID] {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	d.trades = kept
	return removed
}

// ActiveTrades returns a copy of the open trades.
func (d *DailyState) ActiveTrades() []ActiveTrade {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ActiveTrade{}, d.trades...)
}

func (d *DailyState) HasActiveTrades() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.trades) > 0
}

func (d *DailyState) Reconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnects
}

// IncReconnects bumps the connection counter and returns the new value.
func (d *DailyState) IncReconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconnects++
	return d.reconnects
}

func (d *DailyState) setReconnects(n int) {
	d.mu.Lock()
	d.reconnects = n
	d.mu.Unlock()
}

// Snapshot renders the state as its persisted document.
func (d *DailyState) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		LastResetDate:  d.date,
		TradesTaken:    make(map[string]Counter, len(d.counters)),
		ActiveTrades:   append([]ActiveTrade{}, d.trades...),
		RefLevels:      make(map[string]*ReferenceLevels, len(d.levels)),
		EligibleTime:   make(map[string]*time.Time, len(d.eligible)),
		FetchAttempted: make(map[string]bool, len(d.fetchAttempts)),
		FetchAttempts:  make(map[string]int, len(d.fetchAttempts)),
	}
	for id, c := range d.counters {
		s.TradesTaken[key(id)] = c.clone()
	}
	for id, lv := range d.levels {
		if lv == nil {
			s.RefLevels[key(id)] = nil
			continue
		}
		cp := *lv
		s.RefLevels[key(id)] = &cp
	}
	for id, t := range d.eligible {
		if t == nil {
			s.EligibleTime[key(id)] = nil
			continue
		}
		cp := *t
		s.EligibleTime[key(id)] = &cp
	}
	for id, n := range d.fetchAttempts {
		s.FetchAttempted[key(id)] = n > 0
		s.FetchAttempts[key(id)] = n
	}
	return s
}

// FromSnapshot rebuilds a DailyState for the configured sessions. Entries
// for unknown sessions are dropped and counters are normalized so that
// count == len(directions) <= cap.
func FromSnapshot(s Snapshot, ids []session.ID) *DailyState {
	d := NewDailyState(s.LastResetDate, ids)
	for _, id := range ids {
		k := key(id)
		if c, ok := s.TradesTaken[k]; ok {
			dirs := append([]Side{}, c.Directions...)
			if len(dirs) > session.MaxTradesPerSession {
				dirs = dirs[:session.MaxTradesPerSession]
			}
			if c.Count != len(dirs) {
				logger.Warnf("session %d: persisted count %d does not match %d directions", id, c.Count, len(dirs))
			}
			d.counters[id] = &Counter{Count: len(dirs), Directions: dirs}
		}
		if lv := s.RefLevels[k]; lv != nil {
			cp := *lv
			d.levels[id] = &cp
		}
		if t := s.EligibleTime[k]; t != nil {
			cp := *t
			d.eligible[id] = &cp
		}
		if n, ok := s.FetchAttempts[k]; ok {
			d.fetchAttempts[id] = n
		} else if s.FetchAttempted[k] {
			d.fetchAttempts[id] = 1
		}
	}
	known := make(map[session.ID]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	for _, t := range s.ActiveTrades {
		if !known[t.SessionID] {
			logger.Warnf("dropping persisted trade %s of unknown session %d", t.ID, t.SessionID)
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		d.trades = append(d.trades, t)
	}
	return d
}

func key(id session.ID) string {
	return strconv.Itoa(int(id))
}
