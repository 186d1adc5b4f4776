package state

import (
	"sync"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// Manager owns the current DailyState and its store. The engine and the
// background level loader share one Manager; the state itself is swapped
// wholesale on a daily reset.
type Manager struct {
	mu      sync.RWMutex
	current *DailyState
	store   *Store
	ids     []session.ID

	resetReconnectsDaily bool
}

func NewManager(store *Store, ids []session.ID, resetReconnectsDaily bool) *Manager {
	return &Manager{
		store:                store,
		ids:                  append([]session.ID{}, ids...),
		resetReconnectsDaily: resetReconnectsDaily,
	}
}

// Load seeds the manager from the store on startup.
func (m *Manager) Load(today string) error {
	d, err := m.store.Load(today, m.ids)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = d
	m.mu.Unlock()
	return nil
}

// Current returns the live DailyState, creating an empty one for today's
// zero date if Load was never called.
func (m *Manager) Current() *DailyState {
	m.mu.RLock()
	d := m.current
	m.mu.RUnlock()
	if d != nil {
		return d
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		m.current = NewDailyState("", m.ids)
	}
	return m.current
}

// Reset replaces the state with a zeroed one for today and persists it.
func (m *Manager) Reset(today string) *DailyState {
	fresh := NewDailyState(today, m.ids)

	m.mu.Lock()
	if m.current != nil && !m.resetReconnectsDaily {
		fresh.setReconnects(m.current.Reconnects())
	}
	m.current = fresh
	m.mu.Unlock()

	_ = m.Save()
	logger.Infof(i18n.Get("StateReset"), today)
	return fresh
}

// Save persists the current state. Failures are logged and returned; the
// in-memory state stays authoritative.
func (m *Manager) Save() error {
	if err := m.store.Save(m.Current()); err != nil {
		logger.Errorf(i18n.Get("StateSaveFailed"), err)
		return err
	}
	return nil
}

func (m *Manager) Store() *Store { return m.store }

func (m *Manager) SessionIDs() []session.ID {
	return append([]session.ID{}, m.ids...)
}
