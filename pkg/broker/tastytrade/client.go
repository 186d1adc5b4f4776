// Package tastytrade is a small REST client for the TastyTrade brokerage,
// covering the calls the bot needs: session login, instrument lookup and
// bracket orders on a single future.
package tastytrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"
	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.tastyworks.com"

// Config holds credentials and retry knobs.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	SymbolBase   string // e.g. /MES
	AccountIndex int    // position in /customers/me/accounts

	LoginAttempts int
	LoginWait     time.Duration
	PollAttempts  int
	PollInterval  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 3
	}
	if c.LoginWait <= 0 {
		c.LoginWait = 5 * time.Second
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 60
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.AccountIndex < 0 {
		c.AccountIndex = 0
	}
}

// Client implements broker.Broker against the TastyTrade REST API.
type Client struct {
	cfg  Config
	http *resty.Client

	mu      sync.RWMutex
	token   string
	account string
	symbol  string
}

var _ broker.Broker = (*Client)(nil)

func New(cfg Config) *Client {
	cfg.applyDefaults()
	h := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "breakout-trading-bot/1")
	return &Client{cfg: cfg, http: h}
}

// Symbol is the resolved front-month contract, empty before Login.
func (c *Client) Symbol() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbol
}

func (c *Client) Account() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// apiError is the error envelope returned on non-2xx responses.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func statusError(op string, res *resty.Response) error {
	var e apiError
	if json.Unmarshal(res.Body(), &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("%s: status %d: %s", op, res.StatusCode(), e.Error.Message)
	}
	return fmt.Errorf("%s: status %d: %s", op, res.StatusCode(), truncate(res.String(), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *Client) request(ctx context.Context) *resty.Request {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	r := c.http.R().SetContext(ctx)
	if token != "" {
		r.SetHeader("Authorization", token)
	}
	return r
}

// Login opens a session, resolves the contract and the trading account.
// Transient failures are retried; rejected credentials are not.
func (c *Client) Login(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= c.cfg.LoginAttempts; attempt++ {
		if err = c.login(ctx); err == nil {
			logger.Infof("Login successful - %s (account %s)", c.Symbol(), c.Account())
			return nil
		}
		if errors.Is(err, broker.ErrAuthRejected) {
			return err
		}
		logger.Warnf("Login attempt %d/%d failed: %v", attempt, c.cfg.LoginAttempts, err)
		if attempt < c.cfg.LoginAttempts {
			select {
			case <-time.After(c.cfg.LoginWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func (c *Client) login(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"login":       c.cfg.Username,
			"password":    c.cfg.Password,
			"remember-me": true,
		}).
		Post("/sessions")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	switch res.StatusCode() {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", broker.ErrAuthRejected, statusError("create session", res))
	default:
		return statusError("create session", res)
	}

	var body struct {
		Data struct {
			SessionToken string `json:"session-token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if body.Data.SessionToken == "" {
		return errors.New("create session: empty session token")
	}
	c.mu.Lock()
	c.token = body.Data.SessionToken
	c.mu.Unlock()

	symbol, err := c.frontMonth(ctx)
	if err != nil {
		return err
	}
	account, err := c.accountNumber(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.symbol = symbol
	c.account = account
	c.mu.Unlock()
	return nil
}

// frontMonth resolves SymbolBase to the active contract symbol.
func (c *Client) frontMonth(ctx context.Context) (string, error) {
	product := strings.TrimPrefix(c.cfg.SymbolBase, "/")
	res, err := c.request(ctx).
		SetQueryParam("product-code[]", product).
		Get("/instruments/futures")
	if err != nil {
		return "", fmt.Errorf("lookup future %s: %w", product, err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", statusError("lookup future", res)
	}
	var body struct {
		Data struct {
			Items []struct {
				Symbol      string `json:"symbol"`
				ActiveMonth bool   `json:"active-month"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return "", fmt.Errorf("decode futures: %w", err)
	}
	if len(body.Data.Items) == 0 {
		return "", fmt.Errorf("no future listed for %s", c.cfg.SymbolBase)
	}
	for _, it := range body.Data.Items {
		if it.ActiveMonth {
			return it.Symbol, nil
		}
	}
	return body.Data.Items[0].Symbol, nil
}

func (c *Client) accountNumber(ctx context.Context) (string, error) {
	res, err := c.request(ctx).Get("/customers/me/accounts")
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", statusError("list accounts", res)
	}
	var body struct {
		Data struct {
			Items []struct {
				Account struct {
					Number string `json:"account-number"`
				} `json:"account"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return "", fmt.Errorf("decode accounts: %w", err)
	}
	if c.cfg.AccountIndex >= len(body.Data.Items) {
		return "", fmt.Errorf("account index %d out of range (%d accounts)", c.cfg.AccountIndex, len(body.Data.Items))
	}
	return body.Data.Items[c.cfg.AccountIndex].Account.Number, nil
}

// Validate reports whether the current session token is still accepted.
func (c *Client) Validate(ctx context.Context) bool {
	res, err := c.request(ctx).Post("/sessions/validate")
	if err != nil {
		logger.Warnf("Session validation failed: %v", err)
		return false
	}
	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusCreated {
		logger.Warnf("Session validation failed: %v", statusError("validate", res))
		return false
	}
	logger.Info("Session validated")
	return true
}

func (c *Client) Revalidate(ctx context.Context) bool {
	if c.Validate(ctx) {
		return true
	}
	if err := c.Login(ctx); err != nil {
		logger.Errorf("Re-login failed: %v", err)
		return false
	}
	return true
}
