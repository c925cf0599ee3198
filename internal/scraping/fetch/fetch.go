package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lokum-app/lokum/internal/util"
)

// Fetcher retrieves the body of one page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Browser user agents rotated across client instances. Every adapter gets a
// fresh client, so each run presents one consistent identity.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
}

// Client fetches pages over plain HTTP, sharing a rate limiter with its
// sibling clients and retrying transient failures with backoff.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
}

func NewClient(limiter *rate.Limiter) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		userAgent:  userAgents[rand.Intn(len(userAgents))],
		maxRetries: 2,
	}
}

func (c *Client) Fetch(ctx context.Context, pageURL string) (string, error) {
	var body string
	err := util.RetryWithBackoff(ctx, c.maxRetries, func(_ int) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept-Language", "pl,en;q=0.8")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", res.StatusCode)
		}
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		body = string(raw)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	return body, nil
}
