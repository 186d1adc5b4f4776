package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ShreymShah/breakout-trading-bot/internal/session"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SessionConfig is one entry of sessions.yaml.
type SessionConfig struct {
	ID           int     `yaml:"id"`
	Name         string  `yaml:"name"`
	RefHour      int     `yaml:"ref_hour"`
	StartHour    int     `yaml:"start_hour"`
	EndHour      int     `yaml:"end_hour"`
	TargetPoints float64 `yaml:"target_points"`
	StopPoints   float64 `yaml:"stop_points"`
}

// SessionsFile is the top-level YAML structure.
type SessionsFile struct {
	Sessions []SessionConfig `yaml:"sessions"`
}

// DefaultSessions is used when no sessions file exists.
func DefaultSessions() []SessionConfig {
	return []SessionConfig{
		{ID: 22, Name: "London", RefHour: 22, StartHour: 23, EndHour: 24, TargetPoints: 0.2, StopPoints: 0.5},
	}
}

// LoadSessions reads the session table from a YAML file, falling back to
// DefaultSessions when the file does not exist.
func LoadSessions(path string) ([]SessionConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSessions(), nil
	}
	if err != nil {
		return nil, err
	}

	var file SessionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Sessions, nil
}

// Windows converts and validates the configured session table.
func (c *Config) Windows() (session.Table, error) {
	return Windows(c.Sessions)
}

func Windows(sessions []SessionConfig) (session.Table, error) {
	windows := make([]session.Window, 0, len(sessions))
	for _, s := range sessions {
		windows = append(windows, session.Window{
			ID:        session.ID(s.ID),
			Name:      s.Name,
			RefHour:   s.RefHour,
			StartHour: s.StartHour,
			EndHour:   s.EndHour,
			Target:    decimal.NewFromFloat(s.TargetPoints),
			Stop:      decimal.NewFromFloat(s.StopPoints),
		})
	}
	return session.NewTable(windows)
}

// WeekendSpan converts the weekend settings for the scheduler.
func (c *Config) WeekendSpan() session.WeekendSpan {
	w := c.Weekend
	return session.WeekendSpan{
		Enabled:   w.Enabled,
		CloseDay:  w.CloseDay,
		CloseHour: w.CloseHour,
		OpenDay:   w.OpenDay,
		OpenHour:  w.OpenHour,
	}
}
