// Package news aggregates Dota 2 news from the Steam Web API with a short
// in-process cache.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dotagpt/dotagpt/internal/logger"
)

const newsPath = "/ISteamNews/GetNewsForApp/v0002/"

type Item struct {
	GID           string `json:"gid"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	IsExternalURL bool   `json:"is_external_url"`
	Author        string `json:"author"`
	Contents      string `json:"contents"`
	FeedLabel     string `json:"feedlabel"`
	Date          int64  `json:"date"`
	FeedName      string `json:"feedname"`
	FeedType      int    `json:"feed_type"`
	AppID         int    `json:"appid"`
}

type AppNews struct {
	AppID     int    `json:"appid"`
	NewsItems []Item `json:"newsitems"`
	Count     int    `json:"count"`
}

type Response struct {
	AppNews AppNews `json:"appnews"`
}

type cacheEntry struct {
	response  *Response
	fetchedAt time.Time
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      int
	ttl        time.Duration
	log        *logger.Logger

	mu    sync.Mutex
	cache map[int]cacheEntry // keyed by requested item count
}

func NewClient(baseURL string, appID int, ttl time.Duration, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		appID:      appID,
		ttl:        ttl,
		log:        log,
		cache:      make(map[int]cacheEntry),
	}
}

// Fetch returns up to count news items, served from cache while fresh.
func (c *Client) Fetch(ctx context.Context, count int) (*Response, error) {
	if count <= 0 {
		count = 10
	}

	c.mu.Lock()
	if entry, ok := c.cache[count]; ok && time.Since(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.response, nil
	}
	c.mu.Unlock()

	url := fmt.Sprintf("%s%s?appid=%d&count=%d&maxlength=1000&format=json", c.baseURL, newsPath, c.appID, count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build news request: %w", err)
	}
	req.Header.Set("User-Agent", "DotaGPT/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam API error: %d", resp.StatusCode)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}

	c.mu.Lock()
	c.cache[count] = cacheEntry{response: &parsed, fetchedAt: time.Now()}
	c.mu.Unlock()

	c.log.Debug("fetched news from steam", "count", len(parsed.AppNews.NewsItems))
	return &parsed, nil
}
