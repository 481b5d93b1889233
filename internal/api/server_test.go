package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestServer(t *testing.T, cfg Config) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory(&testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)})
	logger := zap.NewNop()
	return NewServer(st, NewCache(nil, time.Minute, logger), cfg, logger), st
}

func seedPost(t *testing.T, st *store.Memory, id, text string, status model.PostStatus) {
	t.Helper()
	ctx := context.Background()
	_, err := st.SaveNews(ctx, []collect.Candidate{{
		Title:      "Title " + id,
		URL:        "https://a.example/" + id,
		Summary:    "summary",
		SourceName: "alpha",
		SourceKind: model.SourceKindSite,
	}})
	require.NoError(t, err)
	items, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, st.SavePosts(ctx, []model.Post{{
		ID:            id,
		NewsID:        items[len(items)-1].News.ID,
		GeneratedText: text,
		Status:        status,
	}}))
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSourceToggle(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	require.NoError(t, st.SeedSources(context.Background(), []model.Source{
		{ID: "s1", Name: "alpha", Kind: model.SourceKindSite, Enabled: true},
	}))

	rec := doJSON(t, srv, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, "/v1/sources/s1", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)

	enabled, err := st.EnabledSources(context.Background())
	require.NoError(t, err)
	require.Empty(t, enabled)

	rec = doJSON(t, srv, http.MethodPatch, "/v1/sources/ghost", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, "/v1/sources/s1", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPostsByStatus(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	seedPost(t, st, "p1", "generated text", model.PostStatusNew)
	seedPost(t, st, "p2", "other text", model.PostStatusPublished)

	rec := doJSON(t, srv, http.MethodGet, "/v1/posts?status=new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Posts []model.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	require.Equal(t, "p1", resp.Posts[0].ID)

	rec = doJSON(t, srv, http.MethodGet, "/v1/posts?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovePostFlow(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	seedPost(t, st, "p1", "generated text", model.PostStatusNew)

	rec := doJSON(t, srv, http.MethodPatch, "/v1/posts/p1/status",
		map[string]string{"status": "published"})
	require.Equal(t, http.StatusOK, rec.Code)

	post, err := st.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, model.PostStatusPublished, post.Status)
}

func TestUpdatePostStatusGuards(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	seedPost(t, st, "sent", "text", model.PostStatusSent)
	seedPost(t, st, "empty", "", model.PostStatusNew)

	// Terminal posts stay where they are.
	rec := doJSON(t, srv, http.MethodPatch, "/v1/posts/sent/status",
		map[string]string{"status": "new"})
	require.Equal(t, http.StatusConflict, rec.Code)

	// A post without text cannot be approved.
	rec = doJSON(t, srv, http.MethodPatch, "/v1/posts/empty/status",
		map[string]string{"status": "published"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, "/v1/posts/empty/status",
		map[string]string{"status": "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, "/v1/posts/ghost/status",
		map[string]string{"status": "published"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostKeywordsEndpoints(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	seedPost(t, st, "p1", "text", model.PostStatusNew)

	rec := doJSON(t, srv, http.MethodPost, "/v1/posts/p1/keywords",
		map[string][]string{"keywords": {"Go", "#cloud"}})
	require.Equal(t, http.StatusOK, rec.Code)

	post, err := st.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, post.HasKeyword("go"))
	require.True(t, post.HasKeyword("cloud"))

	rec = doJSON(t, srv, http.MethodGet, "/v1/keywords", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Keywords []model.Keyword `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keywords, 2)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/keywords/"+resp.Keywords[0].ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	post, err = st.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, post.Keywords, 1)
}

func TestDeletePost(t *testing.T) {
	srv, st := newTestServer(t, Config{})
	seedPost(t, st, "p1", "text", model.PostStatusNew)

	rec := doJSON(t, srv, http.MethodDelete, "/v1/posts/p1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := st.GetPost(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/posts/p1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, Config{AuthEnabled: true, APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
