package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errx "github.com/walletpilot/server/internal/core/error"
)

type Config struct {
	BaseURL string `envconfig:"NEWS_BASE_URL" default:"https://news.walletpilot.dev"`
	Limit   int    `envconfig:"NEWS_LIMIT" default:"5"`
	Timeout int    `envconfig:"NEWS_TIMEOUT_SECONDS" default:"10"`
}

// Item is a single headline from the feed.
type Item struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Client fetches domain headlines from the news feed service.
type Client struct {
	baseURL    string
	limit      int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limit:      limit,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetNews returns the latest headlines.
func (c *Client) GetNews(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/headlines?limit="+strconv.Itoa(c.limit), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errx.WrapNews(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errx.WrapNews(fmt.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	var payload struct {
		Items []Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errx.WrapNews(fmt.Errorf("decode response: %w", err))
	}
	return payload.Items, nil
}
