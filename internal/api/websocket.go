package api

import (
	"net/http"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/events"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are pushed to /ws clients.
var streamedEvents = []events.Event{
	events.EventAlert,
	events.EventLevelsLoaded,
	events.EventTradeOpened,
	events.EventTradeClosed,
	events.EventTradeError,
	events.EventCycleFinished,
	events.EventConnectionLost,
}

type wsMessage struct {
	Type    events.Event `json:"type"`
	Time    time.Time    `json:"time"`
	Payload any          `json:"payload"`
}

type tagged struct {
	ev      events.Event
	payload any
}

// websocket streams bot events to the client until it disconnects.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan tagged, 100)
	done := make(chan struct{})
	defer close(done)
	for _, ev := range streamedEvents {
		ch, unsub := s.Bus.Subscribe(ev, 32)
		defer unsub()
		go func(ev events.Event, ch <-chan any) {
			for p := range ch {
				select {
				case merged <- tagged{ev: ev, payload: p}:
				case <-done:
					return
				}
			}
		}(ev, ch)
	}

	// Detect client close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		case m := <-merged:
			if err := conn.WriteJSON(wsMessage{Type: m.ev, Time: time.Now(), Payload: wirePayload(m.payload)}); err != nil {
				logger.Debugf("ws write error: %v", err)
				return
			}
		}
	}
}

// wirePayload flattens error fields, which encode as {} otherwise.
func wirePayload(p any) any {
	switch v := p.(type) {
	case events.TradeError:
		return gin.H{"session_id": v.SessionID, "side": v.Side, "error": errText(v.Err)}
	case events.CycleFinished:
		return gin.H{"outcome": v.Outcome, "error": errText(v.Err), "reconnects": v.Reconnects, "duration_ms": v.Duration.Milliseconds()}
	}
	return p
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
