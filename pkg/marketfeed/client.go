// Package marketfeed fetches and normalizes the marketplace listing feed
// for one collection, respecting the public API's rate limits.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/internal/metrics"
	"github.com/galleryscape/listingd/pkg/config"
	"github.com/galleryscape/listingd/pkg/listing"
)

const userAgent = "galleryscape-listingd"

// Client pages through the marketplace listings endpoint.
type Client struct {
	http    *http.Client
	logger  *zap.Logger
	limiter *rateLimiter
	cfg     config.MarketConfig

	backoff func(context.Context, time.Duration) error
}

func NewClient(logger *zap.Logger, cfg config.MarketConfig) *Client {
	return &Client{
		http:    &http.Client{},
		logger:  logger,
		limiter: newRateLimiter(cfg.MinInterval, cfg.MaxPerMinute),
		cfg:     cfg,
		backoff: sleepCtx,
	}
}

// FetchAll retrieves the complete listing set, paging by offset until a
// short page. Malformed items are skipped and counted, never fatal.
func (c *Client) FetchAll(ctx context.Context) ([]listing.NormalizedListing, error) {
	var (
		all     []listing.NormalizedListing
		skipped int
		offset  int
		pages   int
	)
	for {
		items, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching listings at offset %d: %w", offset, err)
		}
		pages++
		for _, item := range items {
			norm, ok := normalize(item)
			if !ok {
				skipped++
				continue
			}
			all = append(all, norm)
		}
		if len(items) < c.cfg.PageLimit {
			break
		}
		offset += c.cfg.PageLimit
	}
	c.logger.Info("fetched listing feed",
		zap.Int("pages", pages),
		zap.Int("total", len(all)),
		zap.Int("skipped", skipped))
	return all, nil
}

func (c *Client) pageURL(offset int) string {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	q.Set("sort", "listPrice")
	q.Set("sort_direction", "asc")
	q.Set("listingAggMode", "true")
	return fmt.Sprintf("%s/collections/%s/listings?%s", c.cfg.BaseURL, c.cfg.Collection, q.Encode())
}

// fetchPage requests one page with retries. Only 429 and 5xx responses are
// retried, with exponential backoff; other HTTP errors fail immediately.
func (c *Client) fetchPage(ctx context.Context, offset int) ([]apiListing, error) {
	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			metrics.FetchRetriesTotal.Inc()
			if err := c.backoff(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		if err := c.limiter.waitNext(ctx); err != nil {
			return nil, err
		}

		items, retryable, err := c.doRequest(ctx, offset)
		if err == nil {
			return items, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("retryable fetch error",
			zap.Int("attempt", attempt),
			zap.Int("offset", offset),
			zap.Error(err))
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, offset int) (items []apiListing, retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.pageURL(offset), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("network_error").Inc()
		// Timeouts and connection resets are transient.
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			metrics.FetchRequestsTotal.WithLabelValues("retryable").Inc()
			return nil, true, err
		}
		metrics.FetchRequestsTotal.WithLabelValues("client_error").Inc()
		return nil, false, err
	}

	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		metrics.FetchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, true, fmt.Errorf("decoding listing page: %w", err)
	}
	metrics.FetchRequestsTotal.WithLabelValues("ok").Inc()
	return items, false, nil
}
