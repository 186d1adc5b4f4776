// Package api serves the operator HTTP surface: health, live status,
// session schedule, metrics, journal reads and a JWT-guarded admin reset.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/engine"
	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/internal/monitor"
	"github.com/ShreymShah/breakout-trading-bot/internal/persistence"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StreamStatus is the live connection view of the engine.
type StreamStatus interface {
	Status() engine.Status
	Reconnects() int
}

// SupervisorStatus reports the restart loop.
type SupervisorStatus interface {
	Status() engine.SupervisorStatus
}

// SystemMeta describes the runtime mode exposed on /api/status.
type SystemMeta struct {
	DryRun       bool
	FeedSymbol   string
	BrokerSymbol string
	UseMockFeed  bool
	Timezone     string
	Version      string
}

// Options are the collaborators of the server. Stream, Supervisor,
// Journal and Metrics may be nil.
type Options struct {
	Bus        *events.Bus
	States     *state.Manager
	Scheduler  *session.Scheduler
	Journal    *persistence.Journal
	Metrics    *monitor.SystemMetrics
	Stream     StreamStatus
	Supervisor SupervisorStatus
	Clock      engine.Clock
	JWTSecret  string
	Meta       SystemMeta
}

// Server wires HTTP endpoints around the running bot.
type Server struct {
	Options
	Router *gin.Engine

	limiters *ipLimiters
	http     *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = engine.NewClock(time.Local)
	}

	r := gin.New()
	s := &Server{Options: opts, Router: r, limiters: newIPLimiters(20, 50, 5*time.Minute)}

	// Recovery first, CORS last before routes.
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(s.limiters))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", s.promMetrics)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/sessions", s.getSessions)
		api.GET("/metrics", s.getMetrics)
		api.GET("/journal/pending", s.getPendingIntents)
		api.GET("/journal/trades", s.getTradeEvents)
		api.GET("/journal/levels", s.getLevels)

		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(s.JWTSecret))
		{
			admin.POST("/reset", s.adminReset)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof(i18n.Get("ServerListening"), addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
