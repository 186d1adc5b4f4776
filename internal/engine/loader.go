package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
)

// LevelLoader fetches each session's reference range once its window has
// started, and periodically revalidates the broker session. It lives for
// one cycle and shares the engine's state manager.
type LevelLoader struct {
	e *Engine
}

// Run loops until ctx ends. Faults are logged, never returned.
func (l *LevelLoader) Run(ctx context.Context) {
	period := l.e.cfg.LevelPeriod
	logger.Debugf(i18n.Get("LevelLoaderStarted"), period)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info(i18n.Get("LevelLoaderCancelled"))
			return
		case <-ticker.C:
		}

		iteration++
		if iteration%l.e.cfg.RevalidateEvery == 0 {
			if l.e.Broker.Revalidate(ctx) {
				logger.Info(i18n.Get("SessionRevalidated"))
			} else if ctx.Err() == nil {
				logger.Warnf(i18n.Get("SessionRevalidateErr"), "session invalid and re-login failed")
			}
		}

		if err := l.safeCheck(ctx); err != nil {
			logger.Warnf(i18n.Get("LevelLoaderError"), err)
		}
	}
}

func (l *LevelLoader) safeCheck(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	l.Check(ctx)
	return nil
}

// Check loads levels for every started window that has none yet and has
// attempts left.
func (l *LevelLoader) Check(ctx context.Context) {
	e := l.e
	now := e.Clock.Now()
	hour := now.Hour()
	st := e.States.Current()

	for _, w := range e.Scheduler.Windows() {
		if hour < w.StartHour {
			continue
		}
		if st.Levels(w.ID) != nil || st.FetchAttempts(w.ID) >= e.cfg.LevelFetchMaxAttempts {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		logger.Infof(i18n.Get("LevelsFetching"), w.Name, hour)
		lv, err := market.FetchReferenceLevels(ctx, e.Feed, e.cfg.FeedSymbol, w.RefHour, now)
		if ctx.Err() != nil {
			// A cancelled fetch does not use up an attempt.
			return
		}
		st.RecordFetchAttempt(w.ID)
		if err != nil {
			if errors.Is(err, market.ErrRefHourPending) {
				logger.Debugf(i18n.Get("LevelsFailed"), w.Name, err)
			} else {
				logger.Warnf(i18n.Get("LevelsFailed"), w.Name, err)
			}
			e.Metrics.IncLevelFetch(false)
			_ = e.States.Save()
			continue
		}

		if err := st.SetLevels(w.ID, lv); err != nil {
			logger.Warnf(i18n.Get("LevelsFailed"), w.Name, err)
			continue
		}
		eligible := w.EligibleOn(now, e.cfg.EntryDelay)
		_ = st.SetEligibleTime(w.ID, eligible)
		_ = e.States.Save()

		e.notify(i18n.Get("NotifyLevelsReady"), w.Name, lv.High, lv.Low, eligible.Format("03:04 PM"))
		logger.Infof(i18n.Get("LevelsLoaded"), w.Name, lv.High, lv.Low)
		e.Metrics.IncLevelFetch(true)
		e.Journal.LevelsLoaded(st.Date(), w.ID, lv, eligible)
		e.publish(events.EventLevelsLoaded, events.LevelsLoaded{
			SessionID: w.ID, Name: w.Name, Levels: lv, EligibleAt: eligible,
		})
	}
}
