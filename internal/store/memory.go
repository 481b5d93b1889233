package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/model"
)

// Memory is an in-memory Store. It backs tests and runs without a
// configured database DSN. All methods are safe for concurrent use.
type Memory struct {
	mu  sync.Mutex
	clk clock.Clock

	sources   map[string]*model.Source
	news      map[string]*model.NewsItem
	newsOrder []string
	posts     map[string]*model.Post
	postOrder []string
	keywords  map[string]*model.Keyword
}

var _ Store = (*Memory)(nil)

// NewMemory builds an empty in-memory store.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clk:      clk,
		sources:  make(map[string]*model.Source),
		news:     make(map[string]*model.NewsItem),
		posts:    make(map[string]*model.Post),
		keywords: make(map[string]*model.Keyword),
	}
}

func (m *Memory) EnabledSources(ctx context.Context) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Source
	for _, src := range m.sources {
		if src.Enabled {
			out = append(out, *src)
		}
	}
	sortSourcesByName(out)
	return out, nil
}

func (m *Memory) ListSources(ctx context.Context) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, *src)
	}
	sortSourcesByName(out)
	return out, nil
}

func (m *Memory) SeedSources(ctx context.Context, sources []model.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range sources {
		if m.sourceByName(src.Name) != nil {
			continue
		}
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		if src.CreatedAt.IsZero() {
			src.CreatedAt = m.clk.Now()
		}
		stored := src
		m.sources[src.ID] = &stored
	}
	return nil
}

func (m *Memory) SetSourceEnabled(ctx context.Context, id string, enabled bool) (model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return model.Source{}, ErrNotFound
	}
	src.Enabled = enabled
	return *src, nil
}

func (m *Memory) SaveNews(ctx context.Context, items []collect.Candidate) (SaveNewsResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res SaveNewsResult
	for _, item := range items {
		src := m.sourceByName(item.SourceName)
		if src == nil {
			src = &model.Source{
				ID:        uuid.NewString(),
				Kind:      item.SourceKind,
				Name:      item.SourceName,
				URL:       item.SourceURL,
				Enabled:   true,
				CreatedAt: m.clk.Now(),
			}
			m.sources[src.ID] = src
		}
		if m.newsByURL(item.URL) != nil {
			res.Skipped++
			continue
		}
		news := &model.NewsItem{
			ID:          uuid.NewString(),
			Title:       item.Title,
			URL:         item.URL,
			Summary:     item.Summary,
			RawText:     item.RawText,
			SourceID:    src.ID,
			PublishedAt: item.PublishedAt,
			CreatedAt:   m.clk.Now(),
		}
		m.news[news.ID] = news
		m.newsOrder = append(m.newsOrder, news.ID)
		res.Stored++
	}
	return res, nil
}

func (m *Memory) ListNews(ctx context.Context, limit int) ([]model.NewsItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.NewsItem
	for i := len(m.newsOrder) - 1; i >= 0; i-- {
		out = append(out, *m.news[m.newsOrder[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) NewsForGeneration(ctx context.Context, limit int) ([]GenerationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []GenerationItem
	for _, id := range m.newsOrder {
		news := m.news[id]
		post := m.postByNews(id)
		if post != nil && (post.GeneratedText != "" || post.Status.Terminal()) {
			continue
		}
		item := GenerationItem{News: *news}
		if post != nil {
			cp := m.copyPost(post)
			item.Post = &cp
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) SavePosts(ctx context.Context, posts []model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = m.clk.Now()
		}
		existing, ok := m.posts[p.ID]
		stored := p
		stored.News = model.NewsItem{}
		if ok {
			stored.Keywords = existing.Keywords
		} else {
			stored.Keywords = nil
			m.postOrder = append(m.postOrder, p.ID)
		}
		m.posts[p.ID] = &stored
	}
	return nil
}

func (m *Memory) PostsNeedingKeywords(ctx context.Context) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Post
	for _, id := range m.postOrder {
		p := m.posts[id]
		if p.GeneratedText == "" || len(p.Keywords) > 0 {
			continue
		}
		if p.Status != model.PostStatusNew && p.Status != model.PostStatusGenerated {
			continue
		}
		out = append(out, m.copyPost(p))
	}
	return out, nil
}

func (m *Memory) AttachKeywords(ctx context.Context, postID string, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	for _, word := range words {
		word = model.NormalizeKeyword(word)
		if word == "" || post.HasKeyword(word) {
			continue
		}
		kw := m.keywordByWord(word)
		if kw == nil {
			kw = &model.Keyword{ID: uuid.NewString(), Word: word, CreatedAt: m.clk.Now()}
			m.keywords[kw.ID] = kw
		}
		post.Keywords = append(post.Keywords, kw)
	}
	return nil
}

func (m *Memory) GetPost(ctx context.Context, id string) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	return m.copyPost(post), nil
}

func (m *Memory) PostsByStatus(ctx context.Context, status model.PostStatus) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Post
	for _, id := range m.postOrder {
		if p := m.posts[id]; p.Status == status {
			out = append(out, m.copyPost(p))
		}
	}
	return out, nil
}

func (m *Memory) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	post.Status = status
	return m.copyPost(post), nil
}

func (m *Memory) MarkPostsSent(ctx context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		post, ok := m.posts[id]
		if !ok {
			return ErrNotFound
		}
		post.Status = model.PostStatusSent
		sentAt := at
		post.PublishedAt = &sentAt
	}
	return nil
}

func (m *Memory) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	m.removePost(id)
	return nil
}

func (m *Memory) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Keyword, 0, len(m.keywords))
	for _, kw := range m.keywords {
		out = append(out, *kw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

func (m *Memory) DeleteKeyword(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kw, ok := m.keywords[id]
	if !ok {
		return ErrNotFound
	}
	for _, post := range m.posts {
		for i, pk := range post.Keywords {
			if pk.ID == kw.ID {
				post.Keywords = append(post.Keywords[:i], post.Keywords[i+1:]...)
				break
			}
		}
	}
	delete(m.keywords, id)
	return nil
}

func (m *Memory) PurgeOldPosts(ctx context.Context, before time.Time, statuses []model.PostStatus, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eligible := make(map[model.PostStatus]struct{}, len(statuses))
	for _, s := range statuses {
		eligible[s] = struct{}{}
	}

	purged := 0
	for _, id := range append([]string(nil), m.postOrder...) {
		if limit > 0 && purged == limit {
			break
		}
		post := m.posts[id]
		if _, ok := eligible[post.Status]; !ok {
			continue
		}
		if !post.CreatedAt.Before(before) {
			continue
		}
		newsID := post.NewsID
		m.removePost(id)
		m.removeNews(newsID)
		purged++
	}
	return purged, nil
}

func (m *Memory) sourceByName(name string) *model.Source {
	for _, src := range m.sources {
		if src.Name == name {
			return src
		}
	}
	return nil
}

func (m *Memory) newsByURL(url string) *model.NewsItem {
	for _, n := range m.news {
		if n.URL == url {
			return n
		}
	}
	return nil
}

func (m *Memory) postByNews(newsID string) *model.Post {
	for _, p := range m.posts {
		if p.NewsID == newsID {
			return p
		}
	}
	return nil
}

func (m *Memory) keywordByWord(word string) *model.Keyword {
	for _, kw := range m.keywords {
		if kw.Word == word {
			return kw
		}
	}
	return nil
}

func (m *Memory) copyPost(p *model.Post) model.Post {
	cp := *p
	if news, ok := m.news[p.NewsID]; ok {
		cp.News = *news
	}
	cp.Keywords = make([]*model.Keyword, len(p.Keywords))
	for i, kw := range p.Keywords {
		kwCopy := *kw
		cp.Keywords[i] = &kwCopy
	}
	return cp
}

func (m *Memory) removePost(id string) {
	delete(m.posts, id)
	for i, pid := range m.postOrder {
		if pid == id {
			m.postOrder = append(m.postOrder[:i], m.postOrder[i+1:]...)
			break
		}
	}
}

func (m *Memory) removeNews(id string) {
	delete(m.news, id)
	for i, nid := range m.newsOrder {
		if nid == id {
			m.newsOrder = append(m.newsOrder[:i], m.newsOrder[i+1:]...)
			break
		}
	}
}

func sortSourcesByName(srcs []model.Source) {
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].Name < srcs[j].Name })
}
