// Package telegram delivers finished posts through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrDelivery marks any failure to hand a message to Telegram. The
// publication job skips the post and moves on; the post is retried on
// the next run because its status is left unchanged.
var ErrDelivery = errors.New("telegram: delivery failed")

// Sender posts a message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

const defaultBaseURL = "https://api.telegram.org"

// Config holds Bot API credentials.
type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// Bot implements Sender against the Telegram Bot API.
type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

var _ Sender = (*Bot)(nil)

// NewBot builds a Bot from configuration.
func NewBot(cfg Config) *Bot {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Bot{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts Markdown-formatted text to the chat.
func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	if b.token == "" {
		return fmt.Errorf("%w: bot token not configured", ErrDelivery)
	}
	if chatID == "" {
		return fmt.Errorf("%w: chat id is empty", ErrDelivery)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: false,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrDelivery, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: decode response (%s): %v", ErrDelivery, resp.Status, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%w: %s: %s", ErrDelivery, resp.Status, parsed.Description)
	}
	return nil
}
