package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/model"
)

// DB is the Postgres-backed Store.
type DB struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Store = (*DB)(nil)

// Open connects to Postgres, applies the pool limits and runs schema
// migration. A limit of zero leaves the driver default in place.
func Open(dsn string, maxOpen, maxIdle int, logger *zap.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql pool: %w", err)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if err := db.AutoMigrate(
		&model.Source{},
		&model.NewsItem{},
		&model.Post{},
		&model.Keyword{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("database ready")
	return &DB{db: db, logger: logger}, nil
}

func (d *DB) EnabledSources(ctx context.Context) ([]model.Source, error) {
	var srcs []model.Source
	err := d.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name").
		Find(&srcs).Error
	return srcs, err
}

func (d *DB) ListSources(ctx context.Context) ([]model.Source, error) {
	var srcs []model.Source
	err := d.db.WithContext(ctx).Order("name").Find(&srcs).Error
	return srcs, err
}

func (d *DB) SeedSources(ctx context.Context, sources []model.Source) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, src := range sources {
			var existing model.Source
			err := tx.Where("name = ?", src.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if src.ID == "" {
				src.ID = uuid.NewString()
			}
			if err := tx.Create(&src).Error; err != nil {
				return fmt.Errorf("seed source %q: %w", src.Name, err)
			}
			d.logger.Info("source seeded", zap.String("name", src.Name))
		}
		return nil
	})
}

func (d *DB) SetSourceEnabled(ctx context.Context, id string, enabled bool) (model.Source, error) {
	var src model.Source
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&src, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		src.Enabled = enabled
		return tx.Model(&src).Update("enabled", enabled).Error
	})
	return src, err
}

func (d *DB) SaveNews(ctx context.Context, items []collect.Candidate) (SaveNewsResult, error) {
	var res SaveNewsResult
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var src model.Source
			err := tx.Where("name = ?", item.SourceName).First(&src).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				src = model.Source{
					ID:      uuid.NewString(),
					Kind:    item.SourceKind,
					Name:    item.SourceName,
					URL:     item.SourceURL,
					Enabled: true,
				}
				err = tx.Create(&src).Error
			}
			if err != nil {
				return fmt.Errorf("resolve source %q: %w", item.SourceName, err)
			}

			var existing int64
			if err := tx.Model(&model.NewsItem{}).Where("url = ?", item.URL).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				res.Skipped++
				continue
			}

			news := model.NewsItem{
				ID:          uuid.NewString(),
				Title:       item.Title,
				URL:         item.URL,
				Summary:     item.Summary,
				RawText:     item.RawText,
				SourceID:    src.ID,
				PublishedAt: item.PublishedAt,
			}
			if err := tx.Create(&news).Error; err != nil {
				return fmt.Errorf("store news item %q: %w", item.URL, err)
			}
			res.Stored++
		}
		return nil
	})
	return res, err
}

func (d *DB) ListNews(ctx context.Context, limit int) ([]model.NewsItem, error) {
	var items []model.NewsItem
	q := d.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&items).Error
	return items, err
}

func (d *DB) NewsForGeneration(ctx context.Context, limit int) ([]GenerationItem, error) {
	var news []model.NewsItem
	q := d.db.WithContext(ctx).
		Preload("Post").
		Joins("LEFT JOIN posts ON posts.news_id = news_items.id").
		Where("posts.id IS NULL OR (posts.generated_text = '' AND posts.status NOT IN ?)",
			[]model.PostStatus{model.PostStatusSent, model.PostStatusArchived}).
		Order("news_items.created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&news).Error; err != nil {
		return nil, err
	}

	items := make([]GenerationItem, 0, len(news))
	for _, n := range news {
		items = append(items, GenerationItem{News: n, Post: n.Post})
	}
	return items, nil
}

func (d *DB) SavePosts(ctx context.Context, posts []model.Post) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range posts {
			if posts[i].ID == "" {
				posts[i].ID = uuid.NewString()
			}
			if err := tx.Omit("News", "Keywords").Save(&posts[i]).Error; err != nil {
				return fmt.Errorf("save post for news %s: %w", posts[i].NewsID, err)
			}
		}
		return nil
	})
}

func (d *DB) PostsNeedingKeywords(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	err := d.db.WithContext(ctx).
		Preload("News").
		Where("status IN ? AND generated_text <> ''", []model.PostStatus{model.PostStatusNew, model.PostStatusGenerated}).
		Where("id NOT IN (SELECT post_id FROM post_keywords)").
		Order("created_at ASC").
		Find(&posts).Error
	return posts, err
}

func (d *DB) AttachKeywords(ctx context.Context, postID string, words []string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post model.Post
		if err := tx.Preload("Keywords").First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		for _, word := range words {
			word = model.NormalizeKeyword(word)
			if word == "" || post.HasKeyword(word) {
				continue
			}
			kw := model.Keyword{ID: uuid.NewString(), Word: word}
			if err := tx.Where("word = ?", word).FirstOrCreate(&kw).Error; err != nil {
				return fmt.Errorf("resolve keyword %q: %w", word, err)
			}
			if err := tx.Model(&post).Association("Keywords").Append(&kw); err != nil {
				return fmt.Errorf("attach keyword %q: %w", word, err)
			}
		}
		return nil
	})
}

func (d *DB) GetPost(ctx context.Context, id string) (model.Post, error) {
	var post model.Post
	err := d.db.WithContext(ctx).
		Preload("News").
		Preload("Keywords").
		First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Post{}, ErrNotFound
	}
	return post, err
}

func (d *DB) PostsByStatus(ctx context.Context, status model.PostStatus) ([]model.Post, error) {
	var posts []model.Post
	err := d.db.WithContext(ctx).
		Preload("News").
		Preload("Keywords").
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&posts).Error
	return posts, err
}

func (d *DB) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) (model.Post, error) {
	var post model.Post
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		post.Status = status
		return tx.Model(&post).Update("status", status).Error
	})
	return post, err
}

func (d *DB) MarkPostsSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.Post{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":       model.PostStatusSent,
				"published_at": at,
			}).Error
	})
}

func (d *DB) DeletePost(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post model.Post
		if err := tx.First(&post, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&post).Association("Keywords").Clear(); err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
}

func (d *DB) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	var kws []model.Keyword
	err := d.db.WithContext(ctx).Order("word").Find(&kws).Error
	return kws, err
}

func (d *DB) DeleteKeyword(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var kw model.Keyword
		if err := tx.First(&kw, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&kw).Association("Posts").Clear(); err != nil {
			return err
		}
		return tx.Delete(&kw).Error
	})
}

func (d *DB) PurgeOldPosts(ctx context.Context, before time.Time, statuses []model.PostStatus, limit int) (int, error) {
	purged := 0
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var posts []model.Post
		if err := tx.Where("status IN ? AND created_at < ?", statuses, before).
			Order("created_at ASC").
			Limit(limit).
			Find(&posts).Error; err != nil {
			return err
		}
		for i := range posts {
			if err := tx.Model(&posts[i]).Association("Keywords").Clear(); err != nil {
				return err
			}
			if err := tx.Delete(&posts[i]).Error; err != nil {
				return err
			}
			if err := tx.Delete(&model.NewsItem{}, "id = ?", posts[i].NewsID).Error; err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
