package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottok-123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.NoError(t, json.NewEncoder(w).Encode(apiResponse{OK: true}))
	}))
	defer srv.Close()

	bot := NewBot(Config{Token: "tok-123", BaseURL: srv.URL})
	err := bot.SendMessage(context.Background(), "@mychannel", "*hello*")
	require.NoError(t, err)
	require.Equal(t, "@mychannel", got.ChatID)
	require.Equal(t, "*hello*", got.Text)
	require.Equal(t, "Markdown", got.ParseMode)
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"}) //nolint:errcheck
	}))
	defer srv.Close()

	bot := NewBot(Config{Token: "tok-123", BaseURL: srv.URL})
	err := bot.SendMessage(context.Background(), "@nowhere", "hello")
	require.ErrorIs(t, err, ErrDelivery)
	require.Contains(t, err.Error(), "chat not found")
}

func TestSendMessageMisconfigured(t *testing.T) {
	bot := NewBot(Config{})
	err := bot.SendMessage(context.Background(), "@mychannel", "hello")
	require.ErrorIs(t, err, ErrDelivery)
}
