package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Client wraps public REST market data endpoints.
type Client struct {
	BaseURL string
	http    *resty.Client
}

// NewClient builds a REST client; testnet switches the base URL.
func NewClient(testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return NewClientWithBaseURL(base)
}

func NewClientWithBaseURL(base string) *Client {
	return &Client{
		BaseURL: base,
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(10 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// GetKlines fetches historical klines. Zero startTime/endTime (ms) use the
// exchange default window.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": interval,
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if startTime > 0 {
		params["startTime"] = strconv.FormatInt(startTime, 10)
	}
	if endTime > 0 {
		params["endTime"] = strconv.FormatInt(endTime, 10)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/api/v3/klines")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != 200 {
		return nil, fmt.Errorf("binance klines status %d: %s", res.StatusCode(), res.String())
	}
	var raw [][]any
	if err := json.Unmarshal(res.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	now := time.Now().UnixMilli()
	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline
		if len(item) < 7 {
			continue
		}
		k := Kline{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  toInt64(item[0]),
			Open:      toDecimal(item[1]),
			High:      toDecimal(item[2]),
			Low:       toDecimal(item[3]),
			Close:     toDecimal(item[4]),
			Volume:    toDecimal(item[5]),
			CloseTime: toInt64(item[6]),
		}
		k.Final = k.CloseTime < now
		klines = append(klines, k)
	}
	return klines, nil
}

func toDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(t)
	default:
		return decimal.Zero
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}
