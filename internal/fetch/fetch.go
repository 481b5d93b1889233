// Package fetch retrieves raw page content for source endpoints.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
)

// Fetch error taxonomy. NotFound is swallowed by the client (missing
// resource means an empty result); Transient is retried with backoff;
// Fatal aborts immediately.
var (
	ErrNotFound  = errors.New("fetch: resource not found")
	ErrTransient = errors.New("fetch: transient failure")
	ErrFatal     = errors.New("fetch: fatal status")
)

// Fetcher retrieves the body of one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Archiver persists raw fetched bodies; nil disables archiving.
type Archiver interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Config controls fetch behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Client implements Fetcher using a Colly collector.
type Client struct {
	cfg     Config
	base    *colly.Collector
	archive Archiver
	sleeper clock.Sleeper
	logger  *zap.Logger
}

// New builds a Client. archive may be nil.
func New(cfg Config, archive Archiver, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Client{
		cfg:     cfg,
		base:    c,
		archive: archive,
		sleeper: clock.NewSystem(),
		logger:  logger,
	}
}

// Fetch retrieves the URL body. A missing resource (404) yields a nil
// body and nil error. Transient failures are retried with jittered
// exponential backoff up to the configured attempt count; the last
// transient error is returned once attempts are exhausted.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleeper.Sleep(ctx, backoff(c.cfg.BackoffInitial, c.cfg.BackoffMax, attempt)); err != nil {
				return nil, fmt.Errorf("fetch backoff: %w", err)
			}
		}

		body, err := c.fetchOnce(ctx, url)
		switch {
		case err == nil:
			c.archiveBody(ctx, url, body)
			return body, nil
		case errors.Is(err, ErrNotFound):
			c.logger.Warn("page not found, treating as empty", zap.String("url", url))
			return nil, nil
		case errors.Is(err, ErrTransient):
			lastErr = err
			c.logger.Warn("transient fetch failure",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: fetch canceled: %v", ErrTransient, ctx.Err())
	case err := <-done:
		if err == nil && fetchErr == nil {
			return body, nil
		}
		if fetchErr == nil {
			fetchErr = err
		}
		return nil, classify(status, fetchErr)
	}
}

// classify maps an HTTP status and transport error onto the taxonomy.
func classify(status int, err error) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %v", ErrTransient, status, err)
	case status == 0:
		// No HTTP response at all: network-level failure.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	default:
		return fmt.Errorf("%w: status %d: %v", ErrFatal, status, err)
	}
}

func (c *Client) archiveBody(ctx context.Context, url string, body []byte) {
	if c.archive == nil || len(body) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%x.html", time.Now().UTC().Format("2006-01-02"), sha256.Sum256([]byte(url)))
	if _, err := c.archive.Put(ctx, path, "text/html; charset=utf-8", body); err != nil {
		c.logger.Warn("raw page archive failed", zap.String("url", url), zap.Error(err))
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
