// Package gen calls the external text-generation service.
package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newsforge/newsforge/internal/model"
)

// Generation error taxonomy. RateLimited requires a pipeline cooldown
// and is never counted against a post's retry ceiling; Service errors
// are retried up to the ceiling.
var (
	ErrRateLimited = errors.New("gen: rate limited")
	ErrService     = errors.New("gen: service error")
)

// Generator produces post text and keyword tags.
type Generator interface {
	GenerateText(ctx context.Context, input string) (string, error)
	GenerateKeywords(ctx context.Context, text string, max int) ([]string, error)
}

const (
	defaultPrompt = "Rewrite the following news item as a short, engaging " +
		"channel post. Keep it factual and concise."
	defaultKeywordPrompt = "Extract the most relevant topic tags from the " +
		"following text. Reply with the tags only, comma-separated, at most %d."
)

// Config defines how to contact the OpenAI-compatible API.
type Config struct {
	Endpoint      string
	Model         string
	APIKey        string
	Prompt        string
	KeywordPrompt string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
}

// Client implements Generator backed by an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ Generator = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GenerateText asks the service to turn the input into post text.
func (c *Client) GenerateText(ctx context.Context, input string) (string, error) {
	prompt := c.cfg.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	return c.complete(ctx, prompt+"\n\n"+input, c.cfg.MaxTokens)
}

// GenerateKeywords asks the service for up to max tag words extracted
// from the text. Returned words are normalized and deduplicated.
func (c *Client) GenerateKeywords(ctx context.Context, text string, max int) ([]string, error) {
	if max <= 0 {
		max = 4
	}
	prompt := c.cfg.KeywordPrompt
	if prompt == "" {
		prompt = fmt.Sprintf(defaultKeywordPrompt, max)
	}
	raw, err := c.complete(ctx, prompt+"\n\n"+text, 100)
	if err != nil {
		return nil, err
	}
	return ParseKeywords(raw, max), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.Endpoint == "" || c.cfg.Model == "" {
		return "", fmt.Errorf("%w: client misconfigured", ErrService)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: new request: %v", ErrService, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: %s: %s", ErrService, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response carried no choices", ErrService)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// ParseKeywords splits a comma-separated completion into normalized,
// deduplicated tag words, capped at max.
func ParseKeywords(raw string, max int) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, part := range strings.Split(raw, ",") {
		word := model.NormalizeKeyword(part)
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
		if len(words) == max {
			break
		}
	}
	return words
}
