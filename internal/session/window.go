package session

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ID identifies a configured session window.
type ID int

// MaxTradesPerSession is the daily entry cap of a single session.
const MaxTradesPerSession = 2

// Window is one daily trading session. Hours are local wall-clock hours;
// EndHour is exclusive and may be 24 for a window that runs to midnight.
type Window struct {
	ID        ID
	Name      string
	RefHour   int
	StartHour int
	EndHour   int
	Target    decimal.Decimal
	Stop      decimal.Decimal
}

// Contains reports whether hour falls in [StartHour, EndHour).
func (w Window) Contains(hour int) bool {
	return w.StartHour <= hour && hour < w.EndHour
}

// StartOn returns the window start on the calendar day of t.
func (w Window) StartOn(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), w.StartHour, 0, 0, 0, t.Location())
}

// EligibleOn is the earliest entry instant on the day of t.
func (w Window) EligibleOn(t time.Time, delay time.Duration) time.Time {
	return w.StartOn(t).Add(delay)
}

// CutoffHour is the hour at which open trades of this window are closed.
func (w Window) CutoffHour() int { return w.EndHour }

func (w Window) Validate() error {
	switch {
	case w.Name == "":
		return fmt.Errorf("session %d: name is empty", w.ID)
	case w.RefHour < 0 || w.RefHour > 23:
		return fmt.Errorf("session %d: ref_hour %d out of range", w.ID, w.RefHour)
	case w.StartHour <= w.RefHour:
		return fmt.Errorf("session %d: start_hour %d must be after ref_hour %d", w.ID, w.StartHour, w.RefHour)
	case w.EndHour <= w.StartHour || w.EndHour > 24:
		return fmt.Errorf("session %d: end_hour %d must be in (%d, 24]", w.ID, w.EndHour, w.StartHour)
	case !w.Target.IsPositive():
		return fmt.Errorf("session %d: target distance must be positive", w.ID)
	case !w.Stop.IsPositive():
		return fmt.Errorf("session %d: stop distance must be positive", w.ID)
	}
	return nil
}

// Table is the immutable, id-ordered set of configured windows.
type Table []Window

var ErrNoSessions = errors.New("no sessions configured")

// NewTable validates windows and returns them ordered by id.
func NewTable(windows []Window) (Table, error) {
	if len(windows) == 0 {
		return nil, ErrNoSessions
	}
	seen := make(map[ID]bool, len(windows))
	out := make(Table, 0, len(windows))
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if seen[w.ID] {
			return nil, fmt.Errorf("duplicate session id %d", w.ID)
		}
		seen[w.ID] = true
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t Table) IDs() []ID {
	ids := make([]ID, len(t))
	for i, w := range t {
		ids[i] = w.ID
	}
	return ids
}

func (t Table) Get(id ID) (Window, bool) {
	for _, w := range t {
		if w.ID == id {
			return w, true
		}
	}
	return Window{}, false
}
