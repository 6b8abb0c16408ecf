package flare

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FTSOClient fetches USD price feeds from an FTSO data provider. Prices are
// cached in-process because feeds only update once per voting epoch.
type FTSOClient struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	log        *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewFTSOClient(baseURL string, cacheTTL time.Duration, log *zap.Logger) *FTSOClient {
	return &FTSOClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cacheTTL: cacheTTL,
		log:      log,
		cache:    make(map[string]cachedPrice),
	}
}

type feedResponse struct {
	FeedID    string `json:"feed_id"`
	Value     int64  `json:"value"`
	Decimals  int32  `json:"decimals"`
	Timestamp int64  `json:"timestamp"`
}

// GetPrice returns the USD price for a feed symbol such as "USDT" or "FLR".
func (c *FTSOClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	cached, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < c.cacheTTL {
		return cached.price, nil
	}

	url := fmt.Sprintf("%s/api/v1/feeds/%s/USD", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Serve a stale price over failing the caller outright.
		if ok {
			c.log.Warn("ftso provider unavailable, serving stale price",
				zap.String("symbol", symbol), zap.Error(err))
			return cached.price, nil
		}
		return decimal.Zero, fmt.Errorf("ftso provider unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("ftso provider returned %d: %s", resp.StatusCode, string(body))
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return decimal.Zero, err
	}
	if feed.Value <= 0 {
		return decimal.Zero, fmt.Errorf("ftso feed %s returned non-positive value %d", symbol, feed.Value)
	}

	price := decimal.New(feed.Value, -feed.Decimals)

	c.mu.Lock()
	c.cache[symbol] = cachedPrice{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()

	return price, nil
}

// GetStablecoinPrice returns the USD price of the pool's settlement
// stablecoin.
func (c *FTSOClient) GetStablecoinPrice(ctx context.Context) (decimal.Decimal, error) {
	return c.GetPrice(ctx, "USDT")
}
