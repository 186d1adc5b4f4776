package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/internal/market"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamClient manages streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return NewStreamClientWithURL((&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String())
}

func NewStreamClientWithURL(streamURL string) *StreamClient {
	return &StreamClient{
		StreamURL: strings.TrimRight(streamURL, "/"),
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (c *StreamClient) dial(ctx context.Context, stream string) (*websocket.Conn, error) {
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial binance ws %s: %w", stream, err)
	}
	return conn, nil
}

func closeConn(conn *websocket.Conn) {
	// Ignore errors; connection may already be closed.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

// SubscribeKlines streams kline updates of symbol into a market.Stream.
// before, if set, runs on the reader goroutine ahead of live messages and
// may push backfilled bars.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string, before func(*market.Stream) error) (*market.Stream, error) {
	// Binance requires lowercase symbols for WebSocket streams
	conn, err := c.dial(ctx, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval))
	if err != nil {
		return nil, err
	}

	var once sync.Once
	stop := func() { once.Do(func() { closeConn(conn) }) }
	s := market.NewStream(256, stop)
	s.CloseOnDone(ctx)

	go func() {
		defer stop()
		if before != nil {
			if err := before(s); err != nil {
				s.Finish(err)
				return
			}
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-s.Done():
					s.Finish(nil)
				default:
					logger.Warnf("binance ws read error: %v", err)
					s.Finish(err)
				}
				return
			}

			k, err := parseKlineMessage(msg)
			if err != nil {
				logger.Debugf("binance ws parse error: %v", err)
				continue
			}
			if !s.Send(k.Bar()) {
				return
			}
		}
	}()

	return s, nil
}

// SubscribeBookTicker subscribes to best bid/ask updates. It returns the
// channel and a stop function.
func (c *StreamClient) SubscribeBookTicker(ctx context.Context, symbol string) (<-chan BookTicker, func(), error) {
	conn, err := c.dial(ctx, fmt.Sprintf("%s@bookTicker", strings.ToLower(symbol)))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan BookTicker, 16)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			closeConn(conn)
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			parsed, err := parseBookTickerMessage(msg)
			if err != nil {
				continue
			}
			select {
			case out <- parsed:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data *struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Data == nil {
		return Kline{}, fmt.Errorf("not a kline event: %s", truncate(msg, 80))
	}
	d := raw.Data
	return Kline{
		Symbol:    d.Symbol,
		Interval:  d.Interval,
		OpenTime:  d.StartTime,
		CloseTime: d.CloseTime,
		Open:      toDecimal(d.Open),
		Close:     toDecimal(d.Close),
		High:      toDecimal(d.High),
		Low:       toDecimal(d.Low),
		Volume:    toDecimal(d.Volume),
		Final:     d.Final,
	}, nil
}

func parseBookTickerMessage(msg []byte) (BookTicker, error) {
	var raw struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return BookTicker{}, err
	}
	if raw.Bid == "" || raw.Ask == "" {
		return BookTicker{}, fmt.Errorf("not a bookTicker event: %s", truncate(msg, 80))
	}
	return BookTicker{
		Symbol:   raw.Symbol,
		BidPrice: toDecimal(raw.Bid),
		AskPrice: toDecimal(raw.Ask),
		Time:     time.Now(),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
