package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botABC/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramWithBaseURL(srv.URL, "ABC", "42")
	require.NoError(t, tg.Send(context.Background(), "*London Ready*"))
	assert.Equal(t, map[string]string{"chat_id": "42", "text": "*London Ready*", "parse_mode": "Markdown"}, got)
}

func TestTelegramNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramWithBaseURL(srv.URL, "ABC", "42").Send(context.Background(), "x")
	assert.EqualError(t, err, "telegram send failed: 400")
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewTelegramWithBaseURL(url, "SECRET-TOKEN", "42").Send(context.Background(), "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}
