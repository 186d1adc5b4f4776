// Package notify delivers operator messages to Telegram.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends Markdown messages to one chat through the Bot API.
type Telegram struct {
	chatID string
	token  string
	http   *resty.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return NewTelegramWithBaseURL(telegramAPI, token, chatID)
}

func NewTelegramWithBaseURL(base, token, chatID string) *Telegram {
	return &Telegram{
		chatID: chatID,
		token:  token,
		http:   resty.New().SetBaseURL(strings.TrimRight(base, "/")).SetTimeout(5 * time.Second),
	}
}

// Send posts one message. A non-200 answer is an error.
func (t *Telegram) Send(ctx context.Context, text string) error {
	res, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		// resty puts the URL, and so the token, into transport errors.
		return fmt.Errorf("telegram send: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram send failed: %d", res.StatusCode())
	}
	return nil
}

// Discard drops every message. Used when Telegram is not configured.
type Discard struct{}

func (Discard) Send(context.Context, string) error { return nil }
