// Package api exposes the HTTP interface of the service: health and
// metrics probes plus the operator endpoints for sources, news, posts
// and keywords.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/store"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// Config holds the server knobs the handlers need.
type Config struct {
	AuthEnabled bool
	APIKey      string
	Timeout     time.Duration
}

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	store  store.Store
	cache  *Cache
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st store.Store, cache *Cache, cfg Config, logger *zap.Logger) *Server {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	s := &Server{
		store:  st,
		cache:  cache,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(timeoutMiddleware(cfg.Timeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Patch("/{source_id}", s.updateSource)
		})
		r.Get("/news", s.listNews)
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.listPosts)
			r.Route("/{post_id}", func(r chi.Router) {
				r.Get("/", s.getPost)
				r.Delete("/", s.deletePost)
				r.Patch("/status", s.updatePostStatus)
				r.Post("/keywords", s.addPostKeywords)
			})
		})
		r.Route("/keywords", func(r chi.Router) {
			r.Get("/", s.listKeywords)
			r.Delete("/{keyword_id}", s.deleteKeyword)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListSources(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sources": srcs})
}

type updateSourceRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	var req updateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(s.logger, w, http.StatusBadRequest, "body must carry an enabled flag")
		return
	}
	src, err := s.store.SetSourceEnabled(r.Context(), chi.URLParam(r, "source_id"), *req.Enabled)
	if err != nil {
		s.writeStoreError(w, err, "source not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) listNews(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	items, err := s.store.ListNews(r.Context(), limit)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list news")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"news": items})
}

func postsCacheKey(status model.PostStatus) string {
	return "posts:" + string(status)
}

// postsCacheKeys covers every status listing; all of them are dropped
// on any post mutation.
func postsCacheKeys() []string {
	statuses := []model.PostStatus{
		model.PostStatusNew, model.PostStatusGenerated, model.PostStatusPublished,
		model.PostStatusSent, model.PostStatusFailed, model.PostStatusArchived,
	}
	keys := make([]string, 0, len(statuses))
	for _, st := range statuses {
		keys = append(keys, postsCacheKey(st))
	}
	return keys
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	status := model.PostStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.PostStatusNew
	}
	if !status.Valid() {
		writeError(s.logger, w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	key := postsCacheKey(status)
	if data, ok := s.cache.Get(r.Context(), key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.Write(data) //nolint:errcheck
		return
	}

	posts, err := s.store.PostsByStatus(r.Context(), status)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	payload, err := json.Marshal(map[string]any{"posts": posts})
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to encode posts")
		return
	}
	s.cache.Set(r.Context(), key, payload)
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload) //nolint:errcheck
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"post": post})
}

type updatePostStatusRequest struct {
	Status model.PostStatus `json:"status"`
}

func (s *Server) updatePostStatus(w http.ResponseWriter, r *http.Request) {
	var req updatePostStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		writeError(s.logger, w, http.StatusBadRequest, "body must carry a valid status")
		return
	}
	postID := chi.URLParam(r, "post_id")
	current, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	if current.Status.Terminal() {
		writeError(s.logger, w, http.StatusConflict,
			fmt.Sprintf("post is already %s", current.Status))
		return
	}
	if req.Status == model.PostStatusPublished && current.GeneratedText == "" {
		writeError(s.logger, w, http.StatusConflict, "post has no generated text to approve")
		return
	}

	post, err := s.store.UpdatePostStatus(r.Context(), postID, req.Status)
	if err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	s.cache.Invalidate(r.Context(), postsCacheKeys()...)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"post": post})
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePost(r.Context(), chi.URLParam(r, "post_id")); err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	s.cache.Invalidate(r.Context(), postsCacheKeys()...)
	w.WriteHeader(http.StatusNoContent)
}

type addKeywordsRequest struct {
	Keywords []string `json:"keywords"`
}

func (s *Server) addPostKeywords(w http.ResponseWriter, r *http.Request) {
	var req addKeywordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keywords) == 0 {
		writeError(s.logger, w, http.StatusBadRequest, "body must carry keywords")
		return
	}
	postID := chi.URLParam(r, "post_id")
	if err := s.store.AttachKeywords(r.Context(), postID, req.Keywords); err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	post, err := s.store.GetPost(r.Context(), postID)
	if err != nil {
		s.writeStoreError(w, err, "post not found")
		return
	}
	s.cache.Invalidate(r.Context(), postsCacheKeys()...)
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"post": post})
}

func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	kws, err := s.store.ListKeywords(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list keywords")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"keywords": kws})
}

func (s *Server) deleteKeyword(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteKeyword(r.Context(), chi.URLParam(r, "keyword_id")); err != nil {
		s.writeStoreError(w, err, "keyword not found")
		return
	}
	s.cache.Invalidate(r.Context(), postsCacheKeys()...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(s.logger, w, http.StatusNotFound, notFoundMsg)
		return
	}
	writeError(s.logger, w, http.StatusInternalServerError, "internal error")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
