// Package main wires together the newsforge service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/api"
	"github.com/newsforge/newsforge/internal/archive"
	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/gen"
	"github.com/newsforge/newsforge/internal/logging"
	"github.com/newsforge/newsforge/internal/pipeline"
	"github.com/newsforge/newsforge/internal/ratelimit"
	"github.com/newsforge/newsforge/internal/schedule"
	"github.com/newsforge/newsforge/internal/source"
	"github.com/newsforge/newsforge/internal/store"
	"github.com/newsforge/newsforge/internal/telegram"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clk := clock.NewSystem()

	st, err := setupStore(cfg, clk, logger)
	if err != nil {
		return err
	}
	if err := st.SeedSources(ctx, source.Seeds(cfg.Sources)); err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}

	pageArchive, err := setupArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fetcher := fetch.New(fetch.Config{
		UserAgent:      cfg.Fetch.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		MaxRetries:     cfg.Fetch.MaxRetries,
		BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
	}, pageArchive, logger)

	registry, err := source.BuildRegistry(cfg.Sources, fetcher, logger)
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}
	collector := collect.New(st, registry, collect.Config{Keywords: cfg.Collector.Keywords}, logger)

	limiter := ratelimit.New(ratelimit.Config{
		Burst:    cfg.RateLimit.Burst,
		Interval: cfg.RateLimitInterval(),
		Cooldown: cfg.RateLimitCooldown(),
	})
	generator := gen.NewClient(gen.Config{
		Endpoint:      cfg.OpenAI.Endpoint,
		Model:         cfg.OpenAI.Model,
		APIKey:        cfg.OpenAI.APIKey,
		Prompt:        cfg.OpenAI.Prompt,
		KeywordPrompt: cfg.OpenAI.KeywordPrompt,
		MaxTokens:     cfg.OpenAI.MaxTokens,
		Temperature:   cfg.OpenAI.Temperature,
		Timeout:       time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
	})
	sender := telegram.NewBot(telegram.Config{Token: cfg.Telegram.BotToken})

	pub, err := setupEvents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := pub.Close(); closeErr != nil {
			logger.Warn("event publisher close failed", zap.Error(closeErr))
		}
	}()

	jobs := []schedule.Job{
		{
			Name:  "collect",
			Every: time.Duration(cfg.Schedule.CollectEvery) * time.Second,
			Run: pipeline.NewCollectJob(collector, st, pub, clk,
				cfg.Collector.ChannelLimit, logger).Run,
		},
		{
			Name:  "generate",
			Every: time.Duration(cfg.Schedule.GenerateEvery) * time.Second,
			Run: pipeline.NewGenerateJob(st, generator, limiter, clk, clk, pub, pipeline.GenerateConfig{
				MaxPerRun:     cfg.Generator.MaxPerRun,
				RetryCeiling:  cfg.Generator.RetryCeiling,
				MinTextLength: cfg.Generator.MinTextLength,
				Cooldown:      cfg.RateLimitCooldown(),
			}, logger).Run,
		},
		{
			Name:  "tag",
			Every: time.Duration(cfg.Schedule.TagEvery) * time.Second,
			Run: pipeline.NewTagJob(st, generator, limiter, clk, pipeline.TagConfig{
				MaxKeywords: cfg.Tagger.MaxKeywords,
				MaxAttempts: cfg.Generator.RetryCeiling,
				Cooldown:    cfg.RateLimitCooldown(),
			}, logger).Run,
		},
		{
			Name:  "publish",
			Every: time.Duration(cfg.Schedule.PublishEvery) * time.Second,
			Run: pipeline.NewPublishJob(st, sender, pub, clk,
				cfg.Telegram.ChannelID, logger).Run,
		},
		{
			Name:  "cleanup",
			Every: time.Duration(cfg.Schedule.CleanupEvery) * time.Second,
			Run: pipeline.NewCleanupJob(st, pub, clk, pipeline.CleanupConfig{
				Retention: cfg.Retention(),
				MaxPerRun: cfg.Cleanup.MaxPerRun,
			}, logger).Run,
		},
	}
	scheduler := schedule.New(jobs, logger)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	cache := api.NewCache(setupRedis(cfg, logger),
		time.Duration(cfg.Redis.TTLSeconds)*time.Second, logger)
	server := api.NewServer(st, cache, api.Config{
		AuthEnabled: cfg.Server.Auth.Enabled,
		APIKey:      cfg.Server.Auth.APIKey,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	<-schedulerDone
	return nil
}

func setupStore(cfg config.Config, clk clock.Clock, logger *zap.Logger) (store.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database DSN configured, using in-memory store")
		return store.NewMemory(clk), nil
	}
	db, err := store.Open(cfg.DB.DSN, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func setupArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (fetch.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	if cfg.Archive.Bucket == "" {
		logger.Warn("archive enabled without a bucket, keeping pages in memory")
		return archive.NewMemory(), nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	gcs, err := archive.NewGCS(client, cfg.Archive.Bucket, cfg.Archive.Prefix)
	if err != nil {
		return nil, fmt.Errorf("gcs archive init failed: %w", err)
	}
	logger.Info("archiving raw pages to GCS", zap.String("bucket", cfg.Archive.Bucket))
	return gcs, nil
}

func setupEvents(ctx context.Context, cfg config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicID == "" {
		logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return events.NewMemory(), nil
	}
	pub, err := events.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	logger.Info("publishing pipeline events",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicID),
	)
	return pub, nil
}

func setupRedis(cfg config.Config, logger *zap.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		logger.Info("no redis configured, post listings are uncached")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
