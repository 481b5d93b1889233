package gen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: content}})
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
	}
}

func TestGenerateText(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, "  a tidy little post  ")
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	text, err := c.GenerateText(context.Background(), "raw news body")
	require.NoError(t, err)
	require.Equal(t, "a tidy little post", text)
}

func TestGenerateTextRateLimited(t *testing.T) {
	srv := newTestServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.GenerateText(context.Background(), "raw news body")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestGenerateTextServiceError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.GenerateText(context.Background(), "raw news body")
	require.ErrorIs(t, err, ErrService)
}

func TestGenerateTextMisconfigured(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.GenerateText(context.Background(), "raw news body")
	require.ErrorIs(t, err, ErrService)
}

func TestGenerateKeywords(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, "Go, #Databases, go, cloud, extra")
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	words, err := c.GenerateKeywords(context.Background(), "some text", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"go", "databases", "cloud"}, words)
}

func TestParseKeywords(t *testing.T) {
	words := ParseKeywords(" Alpha , beta,, #beta, GAMMA ", 10)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, words)

	require.Empty(t, ParseKeywords(" , ,", 4))
}
