// Package freshdesk fetches support tickets from the Freshdesk v2 API with
// pagination, rate-limit handling and bounded retries.
package freshdesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"insightbot/internal/domain"
	"insightbot/internal/httpx"
)

var (
	ErrAuth = errors.New("freshdesk authentication failed")
	ErrAPI  = errors.New("freshdesk api error")
)

const (
	perPage             = 100
	defaultMaxPages     = 10
	defaultPageDelay    = 500 * time.Millisecond
	defaultMaxRetries   = 3
	defaultRetryAfter   = 60 * time.Second
	defaultRetryBackoff = time.Second
)

type Config struct {
	// Domain is the Freshdesk host, e.g. "acme.freshdesk.com". A value
	// containing a scheme is used verbatim as the API base URL.
	Domain     string
	APIKey     string
	MaxPages   int
	PageDelay  time.Duration
	MaxRetries int
}

type Client struct {
	baseURL    string
	apiKey     string
	maxPages   int
	pageDelay  time.Duration
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	logger     *log.Logger
	sleep      func(time.Duration)
}

func NewClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	baseURL := cfg.Domain
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/") + "/api/v2"

	c := &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxPages:   cfg.MaxPages,
		pageDelay:  cfg.PageDelay,
		maxRetries: cfg.MaxRetries,
		backoff:    defaultRetryBackoff,
		httpClient: httpx.ExternalHTTPClient(),
		logger:     logger,
		sleep:      time.Sleep,
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.pageDelay <= 0 {
		c.pageDelay = defaultPageDelay
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	return c
}

// FetchTickets pulls ticket pages ordered by most recent update until a
// short page, the page cap, or context cancellation. Tickets come back raw;
// filtering happens downstream so rejections can be accounted for.
func (c *Client) FetchTickets(ctx context.Context) ([]domain.RawTicket, error) {
	var all []domain.RawTicket
	c.logger.Printf("freshdesk fetch start base=%s max_pages=%d", c.baseURL, c.maxPages)

	for page := 1; page <= c.maxPages; page++ {
		endpoint := fmt.Sprintf("%s/tickets?include=description&per_page=%d&page=%d&order_by=updated_at&order_type=desc",
			c.baseURL, perPage, page)
		c.logger.Printf("freshdesk fetch page=%d", page)

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}

		var tickets []domain.RawTicket
		if err := json.Unmarshal(body, &tickets); err != nil {
			return nil, fmt.Errorf("parsing page %d: %w", page, err)
		}
		all = append(all, tickets...)

		if len(tickets) < perPage {
			break
		}
		if page < c.maxPages {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}

	c.logger.Printf("freshdesk fetch done tickets=%d", len(all))
	return all, nil
}

// GetTicket fetches a single ticket with its description included.
func (c *Client) GetTicket(ctx context.Context, id int64) (*domain.RawTicket, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/tickets/%d?include=description", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("fetching ticket %d: %w", id, err)
	}
	var ticket domain.RawTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("parsing ticket %d: %w", id, err)
	}
	return &ticket, nil
}

// TestConnection verifies the domain and key with a minimal request.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+"/tickets?per_page=1")
	return err
}

// get performs an authenticated GET. 429 responses honor Retry-After (60s
// when absent) and do not consume a retry attempt; transport errors get
// exponential backoff up to the retry limit. 401 and 403 fail immediately.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	backoff := c.backoff
	for {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.SetBasicAuth(c.apiKey, "X")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			attempt++
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w: request failed after %d attempts: %v", ErrAPI, attempt, err)
			}
			c.logger.Printf("freshdesk request error attempt=%d backoff=%s err=%v", attempt, backoff, err)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			c.logger.Printf("freshdesk rate limited, waiting %s", wait)
			c.sleep(wait)
			continue
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, truncate(string(body), 200))
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading response: %w", readErr)
		}
		return body, nil
	}
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
