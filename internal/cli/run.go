package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/api"
	"github.com/ShreymShah/breakout-trading-bot/internal/engine"
	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/reconciliation"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"
	"github.com/ShreymShah/breakout-trading-bot/pkg/broker/tastytrade"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"
	marketbinance "github.com/ShreymShah/breakout-trading-bot/pkg/market/binance"
	"github.com/ShreymShah/breakout-trading-bot/pkg/notify"

	"github.com/spf13/cobra"
)

// alertGrace bounds how long shutdown waits for queued alerts.
const alertGrace = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) now() time.Time {
	return time.Now().In(a.cfg.Location)
}

func (a *app) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	cfg := a.cfg
	logger.Info(i18n.Get("Starting"))
	logger.Infof(i18n.Get("ConfigLoaded"), cfg.SymbolBase, cfg.FeedSymbol, cfg.Timezone, len(a.table))
	for _, w := range a.table {
		logger.Infof(i18n.Get("SessionsLoaded"), w.ID, w.Name, w.RefHour, w.StartHour, w.EndHour, w.Target, w.Stop)
	}

	database, err := a.openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	journal := persistence.NewJournal(database)
	defer journal.Close()

	states := a.stateManager()
	if err := states.Load(a.today()); err != nil {
		return err
	}

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	var sink monitor.AlertSink = notify.Discard{}
	if cfg.NotificationsEnabled() {
		sink = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	}
	mon := monitor.NewMonitor(bus, sink, metrics)
	// Not tied to ctx: the final alerts are published after the signal.
	mon.Start(context.Background())
	defer mon.Stop(alertGrace)

	if _, err := reconciliation.NewService(journal, states, bus).Reconcile(ctx); err != nil {
		logger.Warnf("reconciliation failed: %v", err)
	}

	feed, quotes := a.feed(ctx)
	brk, brokerSymbol := a.broker()

	eng, err := engine.New(engine.Config{
		FeedSymbol:            cfg.FeedSymbol,
		BrokerSymbol:          brokerSymbol,
		EntryDelay:            cfg.EntryDelay,
		MaxIdle:               cfg.MaxIdle,
		OrderTimeout:          cfg.OrderTimeout,
		LevelFetchMaxAttempts: cfg.LevelFetchMaxAttempts,
	}, engine.Deps{
		Clock:     engine.NewClock(cfg.Location),
		Scheduler: a.scheduler(),
		States:    states,
		Feed:      feed,
		Quotes:    quotes,
		Broker:    brk,
		Bus:       bus,
		Journal:   journal,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	sup := engine.NewSupervisor(eng, bus, metrics)

	var server *api.Server
	if cfg.Port != "" {
		server = api.NewServer(api.Options{
			Bus:        bus,
			States:     states,
			Scheduler:  a.scheduler(),
			Journal:    journal,
			Metrics:    metrics,
			Stream:     eng,
			Supervisor: sup,
			Clock:      engine.NewClock(cfg.Location),
			JWTSecret:  cfg.JWTSecret,
			Meta: api.SystemMeta{
				DryRun:       cfg.DryRun,
				FeedSymbol:   cfg.FeedSymbol,
				BrokerSymbol: brokerSymbol,
				UseMockFeed:  cfg.UseMockFeed,
				Timezone:     cfg.Timezone,
				Version:      a.version,
			},
		})
		go func() {
			if err := server.Start(":" + cfg.Port); err != nil {
				logger.Errorf(i18n.Get("APIServerError"), err)
			}
		}()
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY_RUN"
	}
	bus.Alert(fmt.Sprintf(i18n.Get("NotifyStarted"), mode))

	runErr := sup.Run(ctx)

	logger.Info(i18n.Get("ShuttingDown"))
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = server.Shutdown(shutdownCtx)
		cancel()
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// feed picks the live Binance feed or an in-memory random walk.
func (a *app) feed(ctx context.Context) (market.Feed, market.QuoteSource) {
	cfg := a.cfg
	if cfg.UseMockFeed {
		m := market.NewMockFeed()
		now := a.now()
		m.SeedHourly(cfg.FeedSymbol, now, 101, 99)
		m.SeedHourly(cfg.FeedSymbol, now.AddDate(0, 0, -1), 101, 99)
		m.RandomWalk(ctx, cfg.FeedSymbol, 100, 0.5, 2*time.Second)
		return m, m
	}
	f := marketbinance.NewFeed(cfg.BinanceTestnet)
	return f, f
}

// broker returns the executor and the symbol override passed with each
// bracket. The live client resolves the front month itself at login.
func (a *app) broker() (broker.Broker, string) {
	cfg := a.cfg
	if cfg.DryRun {
		logger.Info(i18n.Get("DryRunMode"))
		return broker.NewPaperBroker(broker.PaperConfig{SlippageBps: cfg.DryRunSlippageBps}), cfg.SymbolBase
	}
	logger.Info(i18n.Get("LiveMode"))
	return tastytrade.New(tastytrade.Config{
		BaseURL:      cfg.TTBaseURL,
		Username:     cfg.TTUsername,
		Password:     cfg.TTPassword,
		SymbolBase:   cfg.SymbolBase,
		AccountIndex: cfg.TTAccountIndex,
	}), ""
}
