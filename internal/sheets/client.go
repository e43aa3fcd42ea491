package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"askgive/internal/config"
)

const maxAttempts = 5

// Client downloads the public exports of a Google Sheet. The sheet must be
// shared or published to the web.
type Client struct {
	httpClient *http.Client
	limiter    *RateLimiter
	log        *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.SheetsTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.SheetsRateLimitRPS),
		log:        log,
	}
}

func (c *Client) FetchCSV(ctx context.Context, id string) ([]byte, error) {
	return c.fetch(ctx, CSVExportURL(id))
}

func (c *Client) FetchHTML(ctx context.Context, id string) ([]byte, error) {
	return c.fetch(ctx, HTMLExportURL(id))
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.log.Debug("sheet fetch retry", zap.String("url", target), zap.Int("status", resp.StatusCode), zap.Duration("backoff", backoff))
				if err := sleepCtx(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("sheet status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("failed to fetch sheet (status %d); make sure it is published to the web", resp.StatusCode)
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("sheet request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
