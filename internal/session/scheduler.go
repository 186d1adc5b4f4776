package session

import (
	"time"
)

const (
	ResetHour   = 23
	ResetMinute = 59

	// WakeMargin is added to every computed wake-up outside the weekend.
	WakeMargin = 30 * time.Second
)

// TradeCounter exposes today's per-session entry counts.
type TradeCounter interface {
	TradeCount(id ID) int
}

// WeekendSpan is the weekly no-trading interval [Close, Open).
type WeekendSpan struct {
	Enabled   bool
	CloseDay  time.Weekday
	CloseHour int
	OpenDay   time.Weekday
	OpenHour  int
}

// DefaultWeekend closes Friday 14:00 and reopens Sunday 15:00.
func DefaultWeekend() WeekendSpan {
	return WeekendSpan{
		Enabled:   true,
		CloseDay:  time.Friday,
		CloseHour: 14,
		OpenDay:   time.Sunday,
		OpenHour:  15,
	}
}

func minuteOfWeek(d time.Weekday, h, m int) int {
	return int(d)*24*60 + h*60 + m
}

// Contains reports whether now falls inside the span.
func (w WeekendSpan) Contains(now time.Time) bool {
	if !w.Enabled {
		return false
	}
	p := minuteOfWeek(now.Weekday(), now.Hour(), now.Minute())
	closeAt := minuteOfWeek(w.CloseDay, w.CloseHour, 0)
	openAt := minuteOfWeek(w.OpenDay, w.OpenHour, 0)
	if closeAt <= openAt {
		return closeAt <= p && p < openAt
	}
	return p >= closeAt || p < openAt
}

// NextOpen returns the first opening instant strictly after now.
func (w WeekendSpan) NextOpen(now time.Time) time.Time {
	days := (int(w.OpenDay) - int(now.Weekday()) + 7) % 7
	open := time.Date(now.Year(), now.Month(), now.Day()+days, w.OpenHour, 0, 0, 0, now.Location())
	if !open.After(now) {
		open = open.AddDate(0, 0, 7)
	}
	return open
}

// Scheduler decides from wall-clock time what the engine should do next.
type Scheduler struct {
	windows Table
	weekend WeekendSpan
}

func NewScheduler(windows Table, weekend WeekendSpan) *Scheduler {
	return &Scheduler{windows: windows, weekend: weekend}
}

func (s *Scheduler) Windows() Table { return s.windows }

// InWeekend reports whether now is inside the no-trading weekend span.
func (s *Scheduler) InWeekend(now time.Time) bool {
	return s.weekend.Contains(now)
}

// NextWakeDelay returns how long to sleep before something can happen:
// the weekend reopening, or the nearest session start / daily reset plus
// WakeMargin.
func (s *Scheduler) NextWakeDelay(now time.Time) time.Duration {
	if s.weekend.Contains(now) {
		return s.weekend.NextOpen(now).Sub(now)
	}

	next := NextReset(now)
	for _, w := range s.windows {
		start := w.StartOn(now)
		if !start.After(now) {
			start = start.AddDate(0, 0, 1)
		}
		if start.Before(next) {
			next = start
		}
	}
	return next.Sub(now) + WakeMargin
}

// ShouldBeScanning is true iff some window is open and still below its
// daily trade cap.
func (s *Scheduler) ShouldBeScanning(now time.Time, counts TradeCounter) bool {
	hour := now.Hour()
	for _, w := range s.windows {
		if w.Contains(hour) && counts.TradeCount(w.ID) < MaxTradesPerSession {
			return true
		}
	}
	return false
}

// AnyOpen reports whether any window contains hour.
func (s *Scheduler) AnyOpen(hour int) bool {
	for _, w := range s.windows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

// IsResetMinute reports whether now is inside the daily reset minute.
func IsResetMinute(now time.Time) bool {
	return now.Hour() == ResetHour && now.Minute() == ResetMinute
}

// NextReset returns the next 23:59 strictly after now.
func NextReset(now time.Time) time.Time {
	r := time.Date(now.Year(), now.Month(), now.Day(), ResetHour, ResetMinute, 0, 0, now.Location())
	if !r.After(now) {
		r = r.AddDate(0, 0, 1)
	}
	return r
}

// Date formats the calendar day of t the way DailyState records it.
func Date(t time.Time) string {
	return t.Format(time.DateOnly)
}
