package api

import (
	"net/http"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/engine"
	"github.com/ShreymShah/breakout-trading-bot/internal/risk"
	"github.com/ShreymShah/breakout-trading-bot/internal/session"
	"github.com/ShreymShah/breakout-trading-bot/internal/state"
	"github.com/ShreymShah/breakout-trading-bot/pkg/i18n"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// dateParam returns ?date=YYYY-MM-DD, defaulting to today.
func (s *Server) dateParam(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		return session.Date(s.Clock.Now()), true
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}

type statusResponse struct {
	Mode         string                   `json:"mode"`
	FeedSymbol   string                   `json:"feed_symbol"`
	BrokerSymbol string                   `json:"broker_symbol,omitempty"`
	UseMockFeed  bool                     `json:"use_mock_feed"`
	Timezone     string                   `json:"timezone,omitempty"`
	Version      string                   `json:"version,omitempty"`
	ServerTime   time.Time                `json:"server_time"`
	Reconnects   int                      `json:"reconnects"`
	Stream       *engine.Status           `json:"stream,omitempty"`
	Supervisor   *engine.SupervisorStatus `json:"supervisor,omitempty"`
	State        *state.Snapshot          `json:"state,omitempty"`
}

// getStatus exposes runtime mode, connection state and today's DailyState.
func (s *Server) getStatus(c *gin.Context) {
	mode := "LIVE"
	if s.Meta.DryRun {
		mode = "DRY_RUN"
	}
	resp := statusResponse{
		Mode:         mode,
		FeedSymbol:   s.Meta.FeedSymbol,
		BrokerSymbol: s.Meta.BrokerSymbol,
		UseMockFeed:  s.Meta.UseMockFeed,
		Timezone:     s.Meta.Timezone,
		Version:      s.Meta.Version,
		ServerTime:   s.Clock.Now(),
	}
	if s.Stream != nil {
		st := s.Stream.Status()
		resp.Stream = &st
		resp.Reconnects = s.Stream.Reconnects()
	}
	if s.Supervisor != nil {
		sv := s.Supervisor.Status()
		resp.Supervisor = &sv
	}
	if s.States != nil {
		cur := s.States.Current()
		snap := cur.Snapshot()
		resp.State = &snap
		resp.Reconnects = cur.Reconnects()
	}
	c.JSON(http.StatusOK, resp)
}

type sessionView struct {
	ID           session.ID `json:"id"`
	Name         string     `json:"name"`
	RefHour      int        `json:"ref_hour"`
	StartHour    int        `json:"start_hour"`
	EndHour      int        `json:"end_hour"`
	Target       string     `json:"target_points"`
	Stop         string     `json:"stop_points"`
	Open         bool       `json:"open"`
	TradesTaken  int        `json:"trades_taken"`
	Eligible     bool       `json:"eligible"`
	EligibleAt   *time.Time `json:"eligible_at,omitempty"`
	Levels       any        `json:"levels,omitempty"`
	DenialReason string     `json:"denial_reason,omitempty"`
}

// getSessions lists the configured windows with today's progress and the
// scheduler's next wake-up.
func (s *Server) getSessions(c *gin.Context) {
	if s.Scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, "SCHEDULER_UNAVAILABLE", "scheduler not configured")
		return
	}
	now := s.Clock.Now()
	var st *state.DailyState
	if s.States != nil {
		st = s.States.Current()
	}

	views := make([]sessionView, 0, len(s.Scheduler.Windows()))
	for _, w := range s.Scheduler.Windows() {
		v := sessionView{
			ID:        w.ID,
			Name:      w.Name,
			RefHour:   w.RefHour,
			StartHour: w.StartHour,
			EndHour:   w.EndHour,
			Target:    w.Target.String(),
			Stop:      w.Stop.String(),
			Open:      risk.IsInSessionWindow(w, now.Hour()),
		}
		if st != nil {
			v.TradesTaken = st.TradeCount(w.ID)
			v.EligibleAt = st.EligibleTime(w.ID)
			if lv := st.Levels(w.ID); lv != nil {
				v.Levels = gin.H{"high": lv.High.String(), "low": lv.Low.String()}
			}
			var cp *state.Counter
			if counter, ok := st.Counter(w.ID); ok {
				cp = &counter
			}
			d := risk.Eligibility(cp, now, v.EligibleAt)
			v.Eligible = d.Allowed
			v.DenialReason = d.Reason
		}
		views = append(views, v)
	}

	resp := gin.H{
		"now":        now,
		"sessions":   views,
		"in_weekend": s.Scheduler.InWeekend(now),
		"next_wake":  now.Add(s.Scheduler.NextWakeDelay(now)),
		"next_reset": session.NextReset(now),
	}
	if st != nil {
		resp["scanning"] = s.Scheduler.ShouldBeScanning(now, st)
	}
	c.JSON(http.StatusOK, resp)
}

// getMetrics returns the JSON metrics snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	snap := s.Metrics.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"metrics": snap,
		"journal": s.Journal.Metrics(),
		"bus":     gin.H{"dropped": s.busDropped()},
	})
}

func (s *Server) busDropped() uint64 {
	if s.Bus == nil {
		return 0
	}
	return s.Bus.Dropped()
}

// promMetrics serves the Prometheus exposition of the metrics registry.
func (s *Server) promMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.String(http.StatusServiceUnavailable, "# metrics not available\n")
		return
	}
	promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func (s *Server) getPendingIntents(c *gin.Context) {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
			return
		}
	}
	intents, err := s.Journal.PendingIntents(c.Request.Context(), date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "JOURNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": intents, "count": len(intents)})
}

func (s *Server) getTradeEvents(c *gin.Context) {
	date, ok := s.dateParam(c)
	if !ok {
		return
	}
	evs, err := s.Journal.TradeEvents(c.Request.Context(), date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "JOURNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "events": evs})
}

func (s *Server) getLevels(c *gin.Context) {
	date, ok := s.dateParam(c)
	if !ok {
		return
	}
	levels, err := s.Journal.Levels(c.Request.Context(), date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "JOURNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "levels": levels})
}

// adminReset zeroes today's DailyState. Open trades are dropped from
// tracking; their broker-side brackets are unaffected.
func (s *Server) adminReset(c *gin.Context) {
	if s.States == nil {
		respondError(c, http.StatusServiceUnavailable, "STATE_UNAVAILABLE", "state not configured")
		return
	}
	today := session.Date(s.Clock.Now())
	dropped := len(s.States.Current().ActiveTrades())
	s.States.Reset(today)

	op := CurrentOperator(c)
	logger.Warnf("admin reset by %s (%d active trades dropped)", op, dropped)
	if s.Bus != nil {
		s.Bus.Alert(i18n.Get("NotifyNewDay"))
	}
	c.JSON(http.StatusOK, gin.H{"date": today, "dropped_trades": dropped, "operator": op})
}
